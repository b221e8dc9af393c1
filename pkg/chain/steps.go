package chain

import (
	"github.com/omniforge-ai/omniforge/pkg/tool"
)

// Payload constructors. Payloads are plain maps so they can be persisted,
// streamed, and redacted uniformly; these helpers pin the schema per step
// type.

// ThinkingPayload builds the payload for a thinking step.
func ThinkingPayload(content string, confidence float64) map[string]interface{} {
	payload := map[string]interface{}{
		"content": content,
	}
	if confidence > 0 {
		payload["confidence"] = confidence
	}
	return payload
}

// ToolCallPayload builds the payload for a tool_call step.
func ToolCallPayload(correlationID, toolName string, toolType tool.Type, parameters map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"correlation_id": correlationID,
		"tool_name":      toolName,
		"tool_type":      string(toolType),
		"parameters":     parameters,
	}
}

// ToolResultPayload builds the payload for a tool_result step from the
// invocation outcome.
func ToolResultPayload(correlationID string, result tool.Result) map[string]interface{} {
	payload := map[string]interface{}{
		"correlation_id": correlationID,
		"success":        result.Success,
		"duration_ms":    result.DurationMS,
	}
	if result.Success {
		payload["result"] = result.Output
	} else {
		payload["error"] = result.Error
	}
	return payload
}

// SynthesisPayload builds the payload for a synthesis step referencing the
// steps it draws from.
func SynthesisPayload(content string, sourceStepIDs []string) map[string]interface{} {
	sources := make([]interface{}, len(sourceStepIDs))
	for i, id := range sourceStepIDs {
		sources[i] = id
	}
	return map[string]interface{}{
		"content": content,
		"sources": sources,
	}
}

// CorrelationID extracts the correlation id from a tool_call or tool_result
// payload.
func (s *Step) CorrelationID() string {
	id, _ := s.Payload["correlation_id"].(string)
	return id
}
