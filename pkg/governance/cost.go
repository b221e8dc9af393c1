// Package governance provides pre-call cost estimation, post-call accounting,
// and per-tenant model allow/deny policies.
package governance

import (
	"sync"
)

// ModelCost holds per-model pricing in USD per million tokens.
type ModelCost struct {
	InputPer1M      float64 `json:"input_cost_per_1m" yaml:"input_cost_per_1m"`
	OutputPer1M     float64 `json:"output_cost_per_1m" yaml:"output_cost_per_1m"`
	MaxOutputTokens int     `json:"max_output_tokens" yaml:"max_output_tokens"`
}

// defaultModelCost is a conservative fallback for unknown models.
var defaultModelCost = ModelCost{
	InputPer1M:      15.0,
	OutputPer1M:     75.0,
	MaxOutputTokens: 4096,
}

// CostTable maps model names to pricing and computes estimates.
type CostTable struct {
	mu        sync.RWMutex
	models    map[string]ModelCost
	estimator *TokenEstimator
}

// NewCostTable creates a table seeded with common model pricing.
func NewCostTable() *CostTable {
	return &CostTable{
		models: map[string]ModelCost{
			"gpt-4o":            {InputPer1M: 2.5, OutputPer1M: 10, MaxOutputTokens: 16384},
			"gpt-4o-mini":       {InputPer1M: 0.15, OutputPer1M: 0.6, MaxOutputTokens: 16384},
			"gpt-4-turbo":       {InputPer1M: 10, OutputPer1M: 30, MaxOutputTokens: 4096},
			"gpt-3.5-turbo":     {InputPer1M: 0.5, OutputPer1M: 1.5, MaxOutputTokens: 4096},
			"claude-3-opus":     {InputPer1M: 15, OutputPer1M: 75, MaxOutputTokens: 4096},
			"claude-3-5-sonnet": {InputPer1M: 3, OutputPer1M: 15, MaxOutputTokens: 8192},
			"claude-3-haiku":    {InputPer1M: 0.25, OutputPer1M: 1.25, MaxOutputTokens: 4096},
		},
		estimator: NewTokenEstimator(),
	}
}

// SetModelCost installs or overrides pricing for a model.
func (t *CostTable) SetModelCost(model string, cost ModelCost) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.models[model] = cost
}

// Lookup returns pricing for a model, falling back to conservative defaults
// when the model is unknown.
func (t *CostTable) Lookup(model string) ModelCost {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if cost, ok := t.models[model]; ok {
		return cost
	}
	return defaultModelCost
}

// EstimateRequest computes the pre-call cost estimate for a chat request:
// full input at the input rate plus half the output budget at the output
// rate.
func (t *CostTable) EstimateRequest(model string, messages []string, maxTokens int) float64 {
	cost := t.Lookup(model)

	if maxTokens <= 0 || maxTokens > cost.MaxOutputTokens {
		maxTokens = cost.MaxOutputTokens
	}

	inputTokens := t.estimator.EstimateMessages(model, messages)
	inputCost := float64(inputTokens) * cost.InputPer1M / 1_000_000
	outputCost := float64(maxTokens) / 2 * cost.OutputPer1M / 1_000_000
	return inputCost + outputCost
}

// ActualCost computes post-call cost from reported usage.
func (t *CostTable) ActualCost(model string, inputTokens, outputTokens int) float64 {
	cost := t.Lookup(model)
	return float64(inputTokens)*cost.InputPer1M/1_000_000 +
		float64(outputTokens)*cost.OutputPer1M/1_000_000
}

// EstimateTokens exposes the underlying token estimator.
func (t *CostTable) EstimateTokens(model, text string) int {
	return t.estimator.Estimate(model, text)
}
