// Package llms defines the LLM provider contract and a registry of named
// providers. The runtime talks to providers exclusively through the builtin
// llm tool, so every call is gated, recorded, and accounted like any other
// side-effect.
package llms

import (
	"context"

	"github.com/omniforge-ai/omniforge/pkg/registry"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Request is a chat completion request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`

	// JSONMode asks the provider to constrain output to a JSON object.
	JSONMode bool `json:"json_mode,omitempty"`
}

// Usage is provider-reported accounting for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	// CostUSD is the provider-reported cost when available; zero means
	// unknown and the cost table computes it from token counts.
	CostUSD float64 `json:"cost_usd,omitempty"`
}

// TotalTokens returns input plus output tokens.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// Response is the outcome of a chat completion.
type Response struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// Provider generates chat completions.
type Provider interface {
	// Generate performs a non-streaming chat completion.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelName returns the provider's default model.
	ModelName() string
}

// Registry maps provider names to providers.
type Registry struct {
	*registry.OrderedRegistry[Provider]
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		OrderedRegistry: registry.NewOrderedRegistry[Provider](),
	}
}
