package chain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniforge-ai/omniforge/pkg/tool"
)

func buildSampleChain() *Chain {
	c := New("task-1", "agent-1", "tenant-a")

	c.Append(StepThinking, ThinkingPayload("I'll compute it", 0.9), WithUsage(10, 0.0001))

	corrID := uuid.New().String()
	c.Append(StepToolCall, ToolCallPayload(corrID, "calculator", tool.TypeFunction,
		map[string]interface{}{"a": 2, "b": 2, "op": "add"}))
	c.Append(StepToolResult, ToolResultPayload(corrID, tool.Succeed(4, 12*time.Millisecond)),
		WithUsage(0, 0))

	llmCorr := uuid.New().String()
	c.Append(StepToolCall, ToolCallPayload(llmCorr, "llm", tool.TypeLLM,
		map[string]interface{}{"model": "gpt-4o"}))
	c.Append(StepToolResult, ToolResultPayload(llmCorr, tool.Succeed("done", 200*time.Millisecond)),
		WithUsage(150, 0.002))

	c.Append(StepSynthesis, SynthesisPayload("4", []string{c.Steps[2].ID}))
	return c
}

func TestChain_StepNumbersGapFree(t *testing.T) {
	c := buildSampleChain()

	for i, s := range c.Steps {
		assert.Equal(t, i, s.StepNumber)
	}
}

func TestChain_MetricsMatchFold(t *testing.T) {
	c := buildSampleChain()

	assert.Equal(t, ComputeMetrics(c.Steps), c.Metrics)
	assert.Equal(t, 6, c.Metrics.TotalSteps)
	assert.Equal(t, 2, c.Metrics.ToolCalls)
	assert.Equal(t, 1, c.Metrics.LLMCalls)
	assert.Equal(t, 160, c.Metrics.TotalTokens)
	assert.InDelta(t, 0.0021, c.Metrics.TotalCost, 1e-9)
}

func TestChain_ToolResultsPairWithCalls(t *testing.T) {
	c := buildSampleChain()

	calls := make(map[string]int) // correlation id → step number
	for _, s := range c.Steps {
		switch s.Type {
		case StepToolCall:
			calls[s.CorrelationID()] = s.StepNumber
		case StepToolResult:
			callStep, ok := calls[s.CorrelationID()]
			require.True(t, ok, "tool_result step %d has no matching tool_call", s.StepNumber)
			assert.Less(t, callStep, s.StepNumber)
		}
	}
}

func TestChain_Finish(t *testing.T) {
	c := New("t", "a", "")
	require.Equal(t, StatusRunning, c.Status)
	require.Nil(t, c.CompletedAt)

	c.Complete()
	assert.Equal(t, StatusCompleted, c.Status)
	require.NotNil(t, c.CompletedAt)

	// Terminal status is sticky.
	c.Fail()
	assert.Equal(t, StatusCompleted, c.Status)
}

func TestChain_Cancel(t *testing.T) {
	c := New("t", "a", "")
	c.Cancel()
	assert.Equal(t, StatusCancelled, c.Status)
}

func TestChain_StepOptions(t *testing.T) {
	c := New("t", "a", "")

	first := c.Append(StepThinking, ThinkingPayload("think", 0))
	second := c.Append(StepSynthesis, SynthesisPayload("done", []string{first.ID}),
		WithParent(first.ID),
		WithVisibility(Visibility{Level: VisibilityHidden, Reason: "internal"}))

	assert.Equal(t, first.ID, second.ParentStepID)
	assert.Equal(t, VisibilityHidden, second.Visibility.Level)
	assert.Equal(t, VisibilityFull, first.Visibility.Level)
}

func TestChain_AddChildChain(t *testing.T) {
	c := New("t", "a", "")
	c.AddChildChain("child-1")
	c.AddChildChain("child-2")
	assert.Equal(t, []string{"child-1", "child-2"}, c.ChildChainIDs)
}
