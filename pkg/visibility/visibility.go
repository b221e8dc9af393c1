// Package visibility filters persisted reasoning chains for a viewer role:
// steps are passed through, summarized with sensitive fields redacted, or
// dropped entirely.
package visibility

import (
	"fmt"
	"strings"

	"github.com/omniforge-ai/omniforge/pkg/chain"
)

// Redacted replaces the value of every sensitive field.
const Redacted = "[REDACTED]"

// DefaultSensitiveFields are matched as fragments against normalized key
// names (lowercased, underscores stripped).
var DefaultSensitiveFields = []string{"password", "apikey", "token", "secret"}

// Controller resolves a visibility level per step and applies it. The zero
// value passes everything through; use NewController for the standard
// redaction set.
type Controller struct {
	DefaultLevel    chain.VisibilityLevel
	RulesByToolType map[string]chain.VisibilityLevel
	RulesByRole     map[string]chain.VisibilityLevel

	// SensitiveFieldNames are fragments; a key redacts when its normalized
	// name contains any of them.
	SensitiveFieldNames []string
}

// NewController creates a controller that shows everything by default and
// redacts the standard sensitive fields when summarizing.
func NewController() *Controller {
	return &Controller{
		DefaultLevel:        chain.VisibilityFull,
		RulesByToolType:     make(map[string]chain.VisibilityLevel),
		RulesByRole:         make(map[string]chain.VisibilityLevel),
		SensitiveFieldNames: append([]string(nil), DefaultSensitiveFields...),
	}
}

// Filter returns a filtered copy of the chain for the given viewer role.
// The input chain is never modified; step order is preserved; hidden steps
// are dropped.
func (c *Controller) Filter(source *chain.Chain, role string) *chain.Chain {
	filtered := &chain.Chain{
		ID:            source.ID,
		TaskID:        source.TaskID,
		AgentID:       source.AgentID,
		TenantID:      source.TenantID,
		Status:        source.Status,
		StartedAt:     source.StartedAt,
		CompletedAt:   source.CompletedAt,
		Metrics:       source.Metrics,
		ChildChainIDs: append([]string(nil), source.ChildChainIDs...),
		Steps:         []*chain.Step{},
	}

	toolTypes := toolTypesByCorrelation(source.Steps)

	for _, step := range source.Steps {
		switch c.Resolve(step, role, toolTypes[step.CorrelationID()]) {
		case chain.VisibilityHidden:
			continue
		case chain.VisibilitySummary:
			filtered.Steps = append(filtered.Steps, c.summarize(step))
		default:
			filtered.Steps = append(filtered.Steps, step)
		}
	}
	return filtered
}

// FilterSteps applies the same resolution to a step slice.
func (c *Controller) FilterSteps(steps []*chain.Step, role string) []*chain.Step {
	toolTypes := toolTypesByCorrelation(steps)

	filtered := []*chain.Step{}
	for _, step := range steps {
		switch c.Resolve(step, role, toolTypes[step.CorrelationID()]) {
		case chain.VisibilityHidden:
			continue
		case chain.VisibilitySummary:
			filtered = append(filtered, c.summarize(step))
		default:
			filtered = append(filtered, step)
		}
	}
	return filtered
}

// Resolve picks the effective level for one step; most specific wins. A
// tool_result inherits the tool type of its matching tool_call.
func (c *Controller) Resolve(step *chain.Step, role, toolType string) chain.VisibilityLevel {
	if step.Visibility.Level != "" && step.Visibility.Level != chain.VisibilityFull {
		return step.Visibility.Level
	}
	if level, ok := c.RulesByRole[role]; ok {
		return level
	}
	if toolType != "" {
		if level, ok := c.RulesByToolType[toolType]; ok {
			return level
		}
	}
	if c.DefaultLevel != "" {
		return c.DefaultLevel
	}
	return chain.VisibilityFull
}

// summarize replaces content with a deterministic short form and redacts
// sensitive fields from what remains.
func (c *Controller) summarize(step *chain.Step) *chain.Step {
	out := *step
	out.Visibility = chain.Visibility{Level: chain.VisibilitySummary, Reason: step.Visibility.Reason}

	switch step.Type {
	case chain.StepToolCall:
		toolName, _ := step.Payload["tool_name"].(string)
		out.Payload = map[string]interface{}{
			"correlation_id": step.Payload["correlation_id"],
			"tool_name":      toolName,
			"tool_type":      step.Payload["tool_type"],
			"summary":        "Called " + toolName,
		}
		// Parameters survive summarization; sensitive values do not.
		if params, ok := step.Payload["parameters"].(map[string]interface{}); ok {
			out.Payload["parameters"] = params
		}
	case chain.StepToolResult:
		success, _ := step.Payload["success"].(bool)
		summary := "Tool call succeeded"
		if !success {
			summary = "Tool call failed"
		}
		out.Payload = map[string]interface{}{
			"correlation_id": step.Payload["correlation_id"],
			"success":        success,
			"summary":        summary,
		}
	default:
		out.Payload = map[string]interface{}{
			"summary": fmt.Sprintf("Reasoning step #%d", step.StepNumber),
		}
	}

	out.Payload = c.redactMap(out.Payload)
	return &out
}

// RedactArguments strips sensitive values from an arbitrary payload without
// summarizing it.
func (c *Controller) RedactArguments(payload map[string]interface{}) map[string]interface{} {
	return c.redactMap(payload)
}

func (c *Controller) redactMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for key, value := range m {
		if c.isSensitive(key) {
			out[key] = Redacted
			continue
		}
		out[key] = c.redactValue(value)
	}
	return out
}

func (c *Controller) redactValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return c.redactMap(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = c.redactValue(item)
		}
		return out
	default:
		return value
	}
}

func (c *Controller) isSensitive(key string) bool {
	normalized := strings.ReplaceAll(strings.ToLower(key), "_", "")
	for _, fragment := range c.SensitiveFieldNames {
		if fragment == "" {
			continue
		}
		if strings.Contains(normalized, strings.ReplaceAll(strings.ToLower(fragment), "_", "")) {
			return true
		}
	}
	return false
}

// toolTypesByCorrelation indexes tool_call types so tool_result steps can be
// matched against tool-type rules.
func toolTypesByCorrelation(steps []*chain.Step) map[string]string {
	types := make(map[string]string)
	for _, step := range steps {
		if step.Type != chain.StepToolCall {
			continue
		}
		if toolType, ok := step.Payload["tool_type"].(string); ok {
			types[step.CorrelationID()] = toolType
		}
	}
	return types
}
