// Package tool defines the value types describing callable side-effects and
// the registry agents resolve them from.
//
// Every side-effect an agent performs flows through a Tool. A Tool carries a
// typed schema (Definition) that is rendered into the LLM prompt, and every
// invocation produces a Result that is recorded into the reasoning chain.
package tool

import (
	"context"
	"time"
)

// Type categorizes a tool for gating and prompt rendering.
type Type string

const (
	TypeLLM        Type = "llm"
	TypeFunction   Type = "function"
	TypeAPI        Type = "api"
	TypeDatabase   Type = "database"
	TypeFileRead   Type = "file_read"
	TypeFileWrite  Type = "file_write"
	TypeFileSystem Type = "file_system"
	TypeSearch     Type = "search"
)

// Category is the rate-limit bucket a tool type maps to.
type Category string

const (
	CategoryLLM      Category = "llm"
	CategoryExternal Category = "external_api"
	CategoryDatabase Category = "database"
)

// Category maps the tool type to its rate-limit bucket.
func (t Type) Category() Category {
	switch t {
	case TypeLLM:
		return CategoryLLM
	case TypeDatabase:
		return CategoryDatabase
	default:
		return CategoryExternal
	}
}

// Parameter describes a single tool parameter.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string, integer, float, boolean, object, array
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Definition describes a callable tool: its unique name, type, parameter
// schema, and invocation timeout.
type Definition struct {
	Name        string        `json:"name"`
	Type        Type          `json:"type"`
	Description string        `json:"description"`
	Parameters  []Parameter   `json:"parameters,omitempty"`
	Timeout     time.Duration `json:"timeout_ms"`
}

// DefaultTimeout bounds tool invocations whose definition carries none.
const DefaultTimeout = 30 * time.Second

// EffectiveTimeout returns the definition's timeout, falling back to
// DefaultTimeout when unset.
func (d Definition) EffectiveTimeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return DefaultTimeout
}

// JSONSchema renders the parameter list as a JSON-Schema object suitable for
// embedding in an LLM prompt.
func (d Definition) JSONSchema() map[string]interface{} {
	properties := make(map[string]interface{}, len(d.Parameters))
	required := []string{}

	for _, p := range d.Parameters {
		properties[p.Name] = map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// CallContext carries per-invocation identity and budget. TenantID always
// comes from this context, never from LLM-supplied arguments.
type CallContext struct {
	CorrelationID string  `json:"correlation_id"`
	TaskID        string  `json:"task_id"`
	AgentID       string  `json:"agent_id"`
	TenantID      string  `json:"tenant_id,omitempty"`
	ChainID       string  `json:"chain_id,omitempty"`
	MaxTokens     int     `json:"max_tokens,omitempty"`
	MaxCostUSD    float64 `json:"max_cost_usd,omitempty"`
}

// Result is the outcome of a single tool invocation. Exactly one of Output
// and Error is populated.
type Result struct {
	Success    bool        `json:"success"`
	Output     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMS int64       `json:"duration_ms"`
	TokensUsed int         `json:"tokens_used,omitempty"`
	Cost       float64     `json:"cost,omitempty"`
}

// Succeed builds a successful result.
func Succeed(output interface{}, duration time.Duration) Result {
	return Result{
		Success:    true,
		Output:     output,
		DurationMS: duration.Milliseconds(),
	}
}

// Fail builds a failed result.
func Fail(errMsg string, duration time.Duration) Result {
	return Result{
		Success:    false,
		Error:      errMsg,
		DurationMS: duration.Milliseconds(),
	}
}

// Tool is a registered side-effect with a typed schema.
type Tool interface {
	// Definition returns the tool's schema.
	Definition() Definition

	// Execute runs the tool with the given arguments. Implementations must
	// respect ctx cancellation.
	Execute(ctx context.Context, args map[string]interface{}) (Result, error)
}
