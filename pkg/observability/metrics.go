// Package observability exposes runtime metrics through the OpenTelemetry
// meter API with a Prometheus exporter. Call sites reach metrics through the
// process-global recorder so hot paths need no injection.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// InitMetrics builds the meter and instruments. The exporter registers with
// the default Prometheus registry, so promhttp serves the scrape endpoint.
func InitMetrics(_ context.Context, cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("omniforge")

	taskDuration, err := meter.Float64Histogram(
		"omniforge_task_duration_seconds",
		metric.WithDescription("Task execution duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task duration histogram: %w", err)
	}

	taskTotal, err := meter.Int64Counter(
		"omniforge_tasks_total",
		metric.WithDescription("Total tasks executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task counter: %w", err)
	}

	taskErrors, err := meter.Int64Counter(
		"omniforge_task_errors_total",
		metric.WithDescription("Total failed tasks"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task errors counter: %w", err)
	}

	toolDuration, err := meter.Float64Histogram(
		"omniforge_tool_execution_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}

	toolCalls, err := meter.Int64Counter(
		"omniforge_tool_calls_total",
		metric.WithDescription("Total tool calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool calls counter: %w", err)
	}

	toolErrors, err := meter.Int64Counter(
		"omniforge_tool_errors_total",
		metric.WithDescription("Total tool call failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool errors counter: %w", err)
	}

	llmDuration, err := meter.Float64Histogram(
		"omniforge_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	llmInputTokens, err := meter.Int64Counter(
		"omniforge_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent to LLMs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}

	llmOutputTokens, err := meter.Int64Counter(
		"omniforge_llm_tokens_output_total",
		metric.WithDescription("Total output tokens from LLMs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}

	llmCost, err := meter.Float64Counter(
		"omniforge_llm_cost_usd_total",
		metric.WithDescription("Total LLM spend in USD"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm cost counter: %w", err)
	}

	llmErrors, err := meter.Int64Counter(
		"omniforge_llm_errors_total",
		metric.WithDescription("Total LLM request failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	httpDuration, err := meter.Float64Histogram(
		"omniforge_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	httpRequests, err := meter.Int64Counter(
		"omniforge_http_requests_total",
		metric.WithDescription("Total HTTP requests served"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	return &PrometheusMetrics{
		taskDuration:    taskDuration,
		taskTotal:       taskTotal,
		taskErrors:      taskErrors,
		toolDuration:    toolDuration,
		toolCallsTotal:  toolCalls,
		toolErrorsTotal: toolErrors,
		llmDuration:     llmDuration,
		llmInputTokens:  llmInputTokens,
		llmOutputTokens: llmOutputTokens,
		llmCostUSD:      llmCost,
		llmErrorsTotal:  llmErrors,
		httpDuration:    httpDuration,
		httpRequests:    httpRequests,
	}, nil
}
