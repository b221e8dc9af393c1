package driver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// reply is the structured turn the model must emit. Either is_final is true
// and final_answer carries the answer, or action names the tool to call.
type reply struct {
	Thought string `json:"thought"`
	Action  string `json:"action"`

	// ActionInput is usually an object of tool arguments, but final turns
	// may carry the answer as a bare string.
	ActionInput interface{} `json:"action_input"`

	IsFinal     bool   `json:"is_final"`
	FinalAnswer string `json:"final_answer"`
}

// inputMap returns the action input as tool arguments, or nil when it is
// not an object.
func (r *reply) inputMap() map[string]interface{} {
	m, _ := r.ActionInput.(map[string]interface{})
	return m
}

// parseReply decodes a model turn. Code fences are stripped and malformed
// JSON is run through repair before giving up.
func parseReply(raw string) (*reply, error) {
	text := stripFences(raw)
	if text == "" {
		return nil, fmt.Errorf("empty reply")
	}

	var r reply
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(text)
		if repairErr != nil {
			return nil, fmt.Errorf("reply is not valid JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &r); err != nil {
			return nil, fmt.Errorf("reply is not valid JSON after repair: %w", err)
		}
	}

	if r.Thought == "" {
		return nil, fmt.Errorf("reply is missing thought")
	}
	if !r.IsFinal && r.Action == "" {
		return nil, fmt.Errorf("reply names no action and is not final")
	}
	return &r, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		first := strings.TrimSpace(s[:i])
		if first == "json" || first == "" {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
