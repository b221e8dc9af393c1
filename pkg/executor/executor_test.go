package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniforge-ai/omniforge/pkg/chain"
	"github.com/omniforge-ai/omniforge/pkg/governance"
	"github.com/omniforge-ai/omniforge/pkg/ratelimit"
	"github.com/omniforge-ai/omniforge/pkg/tool"
)

func echoTool() tool.Tool {
	return tool.NewFunc(tool.Definition{
		Name:        "echo",
		Type:        tool.TypeFunction,
		Description: "returns its input",
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return args["value"], nil
	})
}

func newExecutor(t *testing.T, tools ...tool.Tool) *Executor {
	t.Helper()
	reg := tool.NewRegistry()
	for _, tl := range tools {
		require.NoError(t, reg.Register(tl, false))
	}
	limiter, err := ratelimit.NewLimiter(ratelimit.DefaultConfig())
	require.NoError(t, err)
	return New(reg, limiter, governance.NewGovernor(governance.Policy{}), governance.NewCostTable())
}

func callCtx() tool.CallContext {
	return tool.CallContext{TaskID: "task-1", AgentID: "agent-1", TenantID: "tenant-1"}
}

func TestExecute_RecordsCallAndResult(t *testing.T) {
	exec := newExecutor(t, echoTool())
	ch := chain.New("task-1", "agent-1", "tenant-1")

	result := exec.Execute(context.Background(), "echo", map[string]interface{}{"value": "hi"}, callCtx(), ch)

	require.True(t, result.Success)
	assert.Equal(t, "hi", result.Output)

	require.Len(t, ch.Steps, 2)
	callStep, resultStep := ch.Steps[0], ch.Steps[1]
	assert.Equal(t, chain.StepToolCall, callStep.Type)
	assert.Equal(t, chain.StepToolResult, resultStep.Type)
	assert.Equal(t, callStep.CorrelationID(), resultStep.CorrelationID())
	assert.NotEmpty(t, callStep.CorrelationID())
	assert.Equal(t, callStep.ID, resultStep.ParentStepID)
	assert.Equal(t, "echo", callStep.Payload["tool_name"])

	assert.Equal(t, 1, ch.Metrics.ToolCalls)
	assert.Equal(t, 0, ch.Metrics.LLMCalls)
}

func TestExecute_CallStepOnRecordDuringInvocation(t *testing.T) {
	ch := chain.New("task-1", "agent-1", "tenant-1")

	var stepsDuring int
	var firstType chain.StepType
	inspecting := tool.NewFunc(tool.Definition{Name: "inspect", Type: tool.TypeFunction},
		func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			stepsDuring = len(ch.Steps)
			if stepsDuring > 0 {
				firstType = ch.Steps[0].Type
			}
			return "ok", nil
		})
	exec := newExecutor(t, inspecting)

	result := exec.Execute(context.Background(), "inspect", nil, callCtx(), ch)
	require.True(t, result.Success)

	// The tool_call step precedes the invocation, so a slow tool is visible
	// on the chain while it runs.
	assert.Equal(t, 1, stepsDuring)
	assert.Equal(t, chain.StepToolCall, firstType)
	require.Len(t, ch.Steps, 2)
}

func TestExecute_ToolNotFound(t *testing.T) {
	exec := newExecutor(t)
	ch := chain.New("task-1", "agent-1", "tenant-1")

	result := exec.Execute(context.Background(), "missing", nil, callCtx(), ch)

	require.False(t, result.Success)
	assert.Contains(t, result.Error, "missing")

	// The attempt is still recorded as a call/result pair.
	require.Len(t, ch.Steps, 2)
	assert.Equal(t, false, ch.Steps[1].Payload["success"])
}

func TestExecute_ToolErrorBecomesFailedResult(t *testing.T) {
	failing := tool.NewFunc(tool.Definition{Name: "boom", Type: tool.TypeFunction},
		func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return nil, errors.New("kaput")
		})
	exec := newExecutor(t, failing)
	ch := chain.New("task-1", "agent-1", "tenant-1")

	result := exec.Execute(context.Background(), "boom", nil, callCtx(), ch)
	require.False(t, result.Success)
	assert.Equal(t, "kaput", result.Error)
	assert.Equal(t, "kaput", ch.Steps[1].Payload["error"])
}

func TestExecute_Timeout(t *testing.T) {
	slow := tool.NewFunc(tool.Definition{
		Name:    "slow",
		Type:    tool.TypeFunction,
		Timeout: 20 * time.Millisecond,
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		select {
		case <-time.After(5 * time.Second):
			return "too late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	exec := newExecutor(t, slow)
	ch := chain.New("task-1", "agent-1", "tenant-1")

	result := exec.Execute(context.Background(), "slow", nil, callCtx(), ch)
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "timed out")
}

func TestExecute_RateLimitDenial(t *testing.T) {
	var invocations int
	counting := tool.NewFunc(tool.Definition{Name: "count", Type: tool.TypeFunction},
		func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			invocations++
			return invocations, nil
		})

	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(counting, false))

	cfg := ratelimit.DefaultConfig()
	cfg.ExternalCallsPerMinute = 1
	limiter, err := ratelimit.NewLimiter(cfg)
	require.NoError(t, err)

	exec := New(reg, limiter, nil, nil)
	ch := chain.New("task-1", "agent-1", "tenant-1")

	first := exec.Execute(context.Background(), "count", nil, callCtx(), ch)
	require.True(t, first.Success)

	second := exec.Execute(context.Background(), "count", nil, callCtx(), ch)
	require.False(t, second.Success)
	assert.Contains(t, second.Error, "rate limit")
	assert.Equal(t, 1, invocations, "denied calls must not reach the tool")

	// All four steps recorded: two call/result pairs.
	assert.Len(t, ch.Steps, 4)
}

func llmStub(inputTokens, outputTokens int) tool.Tool {
	return tool.NewFunc(tool.Definition{Name: "llm", Type: tool.TypeLLM},
		func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return map[string]interface{}{
				"text":          "answer",
				"model":         args["model"],
				"input_tokens":  inputTokens,
				"output_tokens": outputTokens,
			}, nil
		})
}

func llmArgs(model string) map[string]interface{} {
	return map[string]interface{}{
		"model":      model,
		"prompt":     "What is the capital of France?",
		"max_tokens": 100,
	}
}

func TestExecute_GovernanceBlocksModel(t *testing.T) {
	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(llmStub(10, 5), false))

	governor := governance.NewGovernor(governance.Policy{
		BlockedModels: []string{"gpt-4*"},
	})
	exec := New(reg, nil, governor, nil)
	ch := chain.New("task-1", "agent-1", "tenant-1")

	result := exec.Execute(context.Background(), "llm", llmArgs("gpt-4o"), callCtx(), ch)
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "blocked")
}

func TestExecute_CallBudgetExceeded(t *testing.T) {
	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(llmStub(10, 5), false))

	exec := New(reg, nil, nil, nil)
	ch := chain.New("task-1", "agent-1", "tenant-1")

	call := callCtx()
	call.MaxCostUSD = 0.0000001

	result := exec.Execute(context.Background(), "llm", llmArgs("gpt-4o"), call, ch)
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "call budget")
}

func TestExecute_LLMUsageAccounted(t *testing.T) {
	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(llmStub(1000, 500), false))

	costs := governance.NewCostTable()
	exec := New(reg, nil, nil, costs)
	ch := chain.New("task-1", "agent-1", "tenant-1")

	result := exec.Execute(context.Background(), "llm", llmArgs("gpt-4o"), callCtx(), ch)
	require.True(t, result.Success)

	want := costs.ActualCost("gpt-4o", 1000, 500)
	assert.InDelta(t, want, result.Cost, 1e-12)
	assert.Equal(t, 1500, result.TokensUsed)

	// The result step carries the accounting, so chain metrics see it.
	assert.Equal(t, 1500, ch.Metrics.TotalTokens)
	assert.InDelta(t, want, ch.Metrics.TotalCost, 1e-12)
	assert.Equal(t, 1, ch.Metrics.LLMCalls)
}

func TestExecute_RecordFailuresOnly(t *testing.T) {
	exec := newExecutor(t, echoTool())
	ch := chain.New("task-1", "agent-1", "tenant-1")

	ok := exec.Execute(context.Background(), "echo", map[string]interface{}{"value": "hi"},
		callCtx(), ch, RecordFailuresOnly())
	require.True(t, ok.Success)
	assert.Empty(t, ch.Steps, "successful invocations leave no steps in this mode")

	failed := exec.Execute(context.Background(), "missing", nil, callCtx(), ch, RecordFailuresOnly())
	require.False(t, failed.Success)
	require.Len(t, ch.Steps, 2, "failures are always recorded")
	assert.Equal(t, chain.StepToolResult, ch.Steps[1].Type)
	assert.Equal(t, false, ch.Steps[1].Payload["success"])
}

func TestExecute_AllowedToolsGate(t *testing.T) {
	var invoked bool
	shell := tool.NewFunc(tool.Definition{Name: "shell", Type: tool.TypeFunction},
		func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			invoked = true
			return "ran", nil
		})
	exec := newExecutor(t, echoTool(), shell)
	ch := chain.New("task-1", "agent-1", "tenant-1")

	allowed := WithAllowedTools([]string{"echo"})

	result := exec.Execute(context.Background(), "shell", nil, callCtx(), ch, allowed)
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "not allowed")
	assert.False(t, invoked, "gated calls must not reach the tool")

	ok := exec.Execute(context.Background(), "echo", map[string]interface{}{"value": "x"}, callCtx(), ch, allowed)
	assert.True(t, ok.Success)
}

func TestExecute_GeneratedCorrelationIDsAreUnique(t *testing.T) {
	exec := newExecutor(t, echoTool())
	ch := chain.New("task-1", "agent-1", "tenant-1")

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		exec.Execute(context.Background(), "echo", map[string]interface{}{"value": fmt.Sprintf("%d", i)}, callCtx(), ch)
	}
	for _, step := range ch.Steps {
		if step.Type == chain.StepToolCall {
			id := step.CorrelationID()
			assert.False(t, seen[id])
			seen[id] = true
		}
	}
}
