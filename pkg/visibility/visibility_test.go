package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniforge-ai/omniforge/pkg/chain"
	"github.com/omniforge-ai/omniforge/pkg/tool"
)

func buildChain() *chain.Chain {
	c := chain.New("task-1", "agent-1", "tenant-1")
	c.Append(chain.StepThinking, chain.ThinkingPayload("I should query the database", 0.9))
	c.Append(chain.StepToolCall, chain.ToolCallPayload("corr-1", "db_query", tool.TypeDatabase, map[string]interface{}{
		"query":    "SELECT * FROM users",
		"password": "hunter2",
		"options": map[string]interface{}{
			"api_key": "sk-123",
			"retries": 3,
		},
	}))
	c.Append(chain.StepToolResult, chain.ToolResultPayload("corr-1", tool.Succeed(map[string]interface{}{"rows": 3}, 0)))
	c.Append(chain.StepSynthesis, chain.SynthesisPayload("three users", []string{"step-2"}))
	return c
}

func TestFilter_FullPassesThrough(t *testing.T) {
	c := buildChain()
	filtered := NewController().Filter(c, "admin")

	require.Len(t, filtered.Steps, len(c.Steps))
	for i, step := range filtered.Steps {
		assert.Equal(t, c.Steps[i], step)
	}
	assert.Equal(t, c.Metrics, filtered.Metrics)
	assert.Equal(t, c.ID, filtered.ID)
}

func TestFilter_HiddenDropsSteps(t *testing.T) {
	ctl := NewController()
	ctl.RulesByToolType[string(tool.TypeDatabase)] = chain.VisibilityHidden

	filtered := ctl.Filter(buildChain(), "viewer")

	// Both the db tool_call and its result disappear; order is preserved.
	require.Len(t, filtered.Steps, 2)
	assert.Equal(t, chain.StepThinking, filtered.Steps[0].Type)
	assert.Equal(t, chain.StepSynthesis, filtered.Steps[1].Type)
	assert.Equal(t, 0, filtered.Steps[0].StepNumber)
	assert.Equal(t, 3, filtered.Steps[1].StepNumber)
}

func TestFilter_SummaryReplacesContentAndRedacts(t *testing.T) {
	ctl := NewController()
	ctl.RulesByRole["viewer"] = chain.VisibilitySummary

	source := buildChain()
	filtered := ctl.Filter(source, "viewer")
	require.Len(t, filtered.Steps, 4)

	thinking := filtered.Steps[0]
	assert.Equal(t, "Reasoning step #0", thinking.Payload["summary"])
	assert.NotContains(t, thinking.Payload, "content")

	call := filtered.Steps[1]
	assert.Equal(t, "Called db_query", call.Payload["summary"])
	assert.Equal(t, "corr-1", call.Payload["correlation_id"])

	// Parameters are kept but stripped of sensitive values, at any depth.
	params := call.Payload["parameters"].(map[string]interface{})
	assert.Equal(t, "SELECT * FROM users", params["query"])
	assert.Equal(t, Redacted, params["password"])
	options := params["options"].(map[string]interface{})
	assert.Equal(t, Redacted, options["api_key"])
	assert.Equal(t, 3, options["retries"])

	result := filtered.Steps[2]
	assert.Equal(t, "Tool call succeeded", result.Payload["summary"])
	assert.Equal(t, true, result.Payload["success"])

	synthesis := filtered.Steps[3]
	assert.Equal(t, "Reasoning step #3", synthesis.Payload["summary"])

	// The source chain is untouched.
	assert.Equal(t, "I should query the database", source.Steps[0].Payload["content"])
}

func TestFilter_FailedResultSummary(t *testing.T) {
	c := chain.New("task-1", "agent-1", "tenant-1")
	c.Append(chain.StepToolCall, chain.ToolCallPayload("corr-1", "web", tool.TypeAPI, nil))
	c.Append(chain.StepToolResult, chain.ToolResultPayload("corr-1", tool.Fail("boom", 0)))

	ctl := NewController()
	ctl.DefaultLevel = chain.VisibilitySummary

	filtered := ctl.Filter(c, "viewer")
	require.Len(t, filtered.Steps, 2)
	assert.Equal(t, "Tool call failed", filtered.Steps[1].Payload["summary"])
	assert.NotContains(t, filtered.Steps[1].Payload, "error")
}

func TestFilter_ResolutionOrder(t *testing.T) {
	ctl := NewController()
	ctl.DefaultLevel = chain.VisibilityFull
	ctl.RulesByToolType[string(tool.TypeDatabase)] = chain.VisibilityHidden
	ctl.RulesByRole["auditor"] = chain.VisibilitySummary

	step := &chain.Step{
		Type:       chain.StepToolCall,
		Payload:    chain.ToolCallPayload("c", "db_query", tool.TypeDatabase, nil),
		Visibility: chain.Visibility{Level: chain.VisibilityFull},
	}

	// Role rule beats tool-type rule.
	assert.Equal(t, chain.VisibilitySummary, ctl.Resolve(step, "auditor", string(tool.TypeDatabase)))
	// Without a role rule, the tool-type rule applies.
	assert.Equal(t, chain.VisibilityHidden, ctl.Resolve(step, "viewer", string(tool.TypeDatabase)))

	// The step's own marking beats everything.
	step.Visibility.Level = chain.VisibilitySummary
	assert.Equal(t, chain.VisibilitySummary, ctl.Resolve(step, "viewer", string(tool.TypeDatabase)))
}

func TestFilter_ToolResultInheritsCallToolType(t *testing.T) {
	ctl := NewController()
	ctl.RulesByToolType[string(tool.TypeDatabase)] = chain.VisibilityHidden

	c := chain.New("task-1", "agent-1", "tenant-1")
	c.Append(chain.StepToolCall, chain.ToolCallPayload("corr-9", "db_query", tool.TypeDatabase, nil))
	c.Append(chain.StepToolResult, chain.ToolResultPayload("corr-9", tool.Succeed("ok", 0)))

	filtered := ctl.Filter(c, "viewer")
	assert.Empty(t, filtered.Steps)
}

func TestRedaction(t *testing.T) {
	ctl := NewController()

	redacted := ctl.RedactArguments(map[string]interface{}{
		"query":        "SELECT 1",
		"password":     "hunter2",
		"API_KEY":      "sk-123",
		"AccessToken":  "tok",
		"clientSecret": "shh",
		"nested": map[string]interface{}{
			"db_password": "deep",
			"safe":        "keep",
		},
		"list": []interface{}{
			map[string]interface{}{"api_key": "sk-456", "name": "ok"},
		},
	})

	assert.Equal(t, "SELECT 1", redacted["query"])
	assert.Equal(t, Redacted, redacted["password"])
	assert.Equal(t, Redacted, redacted["API_KEY"])
	assert.Equal(t, Redacted, redacted["AccessToken"])
	assert.Equal(t, Redacted, redacted["clientSecret"])

	nested := redacted["nested"].(map[string]interface{})
	assert.Equal(t, Redacted, nested["db_password"])
	assert.Equal(t, "keep", nested["safe"])

	item := redacted["list"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, Redacted, item["api_key"])
	assert.Equal(t, "ok", item["name"])
}

func TestIsSensitiveNormalization(t *testing.T) {
	ctl := NewController()
	for _, key := range []string{"password", "PassWord", "user_password", "api_key", "apikey", "API_KEY", "refresh_token", "client_secret"} {
		assert.True(t, ctl.isSensitive(key), key)
	}
	for _, key := range []string{"query", "username", "model", "toke"} {
		assert.False(t, ctl.isSensitive(key), key)
	}
}
