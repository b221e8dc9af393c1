package llms

import (
	"context"
	"fmt"
	"time"

	"github.com/omniforge-ai/omniforge/pkg/tool"
)

// ToolName is the registered name of the builtin llm tool.
const ToolName = "llm"

// LLMTool exposes the provider registry as an ordinary tool, so LLM calls
// pass through the same gating and recording as every other side-effect.
type LLMTool struct {
	providers       *Registry
	defaultProvider string
	cache           *Cache
}

// NewTool wraps the provider registry as the builtin llm tool.
func NewTool(providers *Registry, defaultProvider string) *LLMTool {
	return &LLMTool{providers: providers, defaultProvider: defaultProvider}
}

// WithCache enables response memoization and returns the tool.
func (t *LLMTool) WithCache(c *Cache) *LLMTool {
	t.cache = c
	return t
}

func (t *LLMTool) Definition() tool.Definition {
	return tool.Definition{
		Name:        ToolName,
		Type:        tool.TypeLLM,
		Description: "Call a language model and return its reply",
		Parameters: []tool.Parameter{
			{Name: "model", Type: "string", Description: "Model to call", Required: true},
			{Name: "messages", Type: "array", Description: "Chat messages, each with role and content", Required: false},
			{Name: "prompt", Type: "string", Description: "Single-turn prompt, alternative to messages", Required: false},
			{Name: "max_tokens", Type: "integer", Description: "Output token budget", Required: false},
			{Name: "temperature", Type: "float", Description: "Sampling temperature", Required: false},
			{Name: "json_mode", Type: "boolean", Description: "Constrain output to a JSON object", Required: false},
			{Name: "provider", Type: "string", Description: "Provider name, defaults to the configured provider", Required: false},
		},
		Timeout: 120 * time.Second,
	}
}

type llmArgs struct {
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Prompt      string    `json:"prompt"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	JSONMode    bool      `json:"json_mode"`
}

func (t *LLMTool) Execute(ctx context.Context, args map[string]interface{}) (tool.Result, error) {
	start := time.Now()

	var parsed llmArgs
	if err := tool.DecodeArgs(args, &parsed); err != nil {
		return tool.Fail(fmt.Sprintf("invalid llm arguments: %v", err), time.Since(start)), nil
	}
	if parsed.Prompt != "" && len(parsed.Messages) == 0 {
		parsed.Messages = []Message{{Role: "user", Content: parsed.Prompt}}
	}
	if len(parsed.Messages) == 0 {
		return tool.Fail("llm call requires messages or prompt", time.Since(start)), nil
	}

	name := parsed.Provider
	if name == "" {
		name = t.defaultProvider
	}
	provider, ok := t.providers.Get(name)
	if !ok {
		return tool.Fail(fmt.Sprintf("llm provider '%s' not registered", name), time.Since(start)), nil
	}

	req := Request{
		Model:       parsed.Model,
		Messages:    parsed.Messages,
		Temperature: parsed.Temperature,
		MaxTokens:   parsed.MaxTokens,
		JSONMode:    parsed.JSONMode,
	}

	if t.cache != nil {
		if resp, ok := t.cache.Get(name, req); ok {
			// A cache hit consumed no provider tokens, so it costs nothing.
			result := tool.Succeed(map[string]interface{}{
				"text":   resp.Text,
				"model":  resp.Model,
				"cached": true,
			}, time.Since(start))
			return result, nil
		}
	}

	resp, err := provider.Generate(ctx, req)
	if err != nil {
		return tool.Fail(err.Error(), time.Since(start)), nil
	}
	if t.cache != nil {
		t.cache.Put(name, req, resp)
	}

	result := tool.Succeed(map[string]interface{}{
		"text":          resp.Text,
		"model":         resp.Model,
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
	}, time.Since(start))
	result.TokensUsed = resp.Usage.TotalTokens()
	result.Cost = resp.Usage.CostUSD
	return result, nil
}
