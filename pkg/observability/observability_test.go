package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMetrics_Disabled(t *testing.T) {
	metrics, err := InitMetrics(context.Background(), MetricsConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, metrics)

	// Zero-value instruments must be safe to call.
	ctx := context.Background()
	metrics.RecordTaskExecution(ctx, "agent-1", 100*time.Millisecond, nil)
	metrics.RecordToolExecution(ctx, "search", 50*time.Millisecond, nil)
	metrics.RecordLLMCall(ctx, "gpt-4o", 300*time.Millisecond, 100, 50, 0.001, nil)
	metrics.RecordHTTPRequest(ctx, "GET", "/healthz", 200, time.Millisecond)
}

func TestInitMetrics_Enabled(t *testing.T) {
	metrics, err := InitMetrics(context.Background(), MetricsConfig{Enabled: true})
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordTaskExecution(ctx, "agent-1", 100*time.Millisecond, nil)
	metrics.RecordTaskExecution(ctx, "agent-1", 200*time.Millisecond, errors.New("boom"))
	metrics.RecordToolExecution(ctx, "calculator", 10*time.Millisecond, nil)
	metrics.RecordToolExecution(ctx, "web_search", 20*time.Millisecond, errors.New("timeout"))
	metrics.RecordLLMCall(ctx, "gpt-4o", 500*time.Millisecond, 100, 50, 0.002, nil)
	metrics.RecordLLMCall(ctx, "claude-sonnet-4", 600*time.Millisecond, 150, 75, 0.004, errors.New("rate limited"))
	metrics.RecordHTTPRequest(ctx, "POST", "/api/v1/agents/{agentID}/tasks", 200, 5*time.Millisecond)
}

func TestNilReceiverIsSafe(t *testing.T) {
	var metrics *PrometheusMetrics
	ctx := context.Background()
	metrics.RecordTaskExecution(ctx, "a", time.Second, nil)
	metrics.RecordToolExecution(ctx, "t", time.Second, nil)
	metrics.RecordLLMCall(ctx, "m", time.Second, 1, 1, 0, nil)
	metrics.RecordHTTPRequest(ctx, "GET", "/", 200, time.Second)
}

func TestGlobalMetrics(t *testing.T) {
	t.Cleanup(func() { SetGlobalMetrics(nil) })

	assert.Nil(t, GetGlobalMetrics())

	metrics := &PrometheusMetrics{}
	SetGlobalMetrics(metrics)
	assert.Same(t, metrics, GetGlobalMetrics())
}
