package ratelimit

import (
	"fmt"
	"time"
)

// Config holds per-tenant quota caps. The zero value is invalid; use
// DefaultConfig as a base.
type Config struct {
	LLMCallsPerMinute      int64 `json:"llm_calls_per_minute" yaml:"llm_calls_per_minute"`
	ExternalCallsPerMinute int64 `json:"external_calls_per_minute" yaml:"external_calls_per_minute"`
	DatabaseCallsPerMinute int64 `json:"database_calls_per_minute" yaml:"database_calls_per_minute"`

	TokensPerMinute int64 `json:"tokens_per_minute" yaml:"tokens_per_minute"`
	TokensPerHour   int64 `json:"tokens_per_hour" yaml:"tokens_per_hour"`

	CostPerHourUSD float64 `json:"cost_per_hour_usd" yaml:"cost_per_hour_usd"`
	CostPerDayUSD  float64 `json:"cost_per_day_usd" yaml:"cost_per_day_usd"`
}

// DefaultConfig returns the caps applied to tenants without an explicit
// configuration.
func DefaultConfig() Config {
	return Config{
		LLMCallsPerMinute:      100,
		ExternalCallsPerMinute: 200,
		DatabaseCallsPerMinute: 300,
		TokensPerMinute:        100_000,
		TokensPerHour:          1_000_000,
		CostPerHourUSD:         10,
		CostPerDayUSD:          100,
	}
}

// Validate checks that every cap is positive.
func (c Config) Validate() error {
	if c.LLMCallsPerMinute <= 0 || c.ExternalCallsPerMinute <= 0 || c.DatabaseCallsPerMinute <= 0 {
		return fmt.Errorf("call caps must be positive")
	}
	if c.TokensPerMinute <= 0 || c.TokensPerHour <= 0 {
		return fmt.Errorf("token caps must be positive")
	}
	if c.CostPerHourUSD <= 0 || c.CostPerDayUSD <= 0 {
		return fmt.Errorf("cost caps must be positive")
	}
	return nil
}

// Decision is the outcome of a CheckAndConsume call.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// window is a sliding usage window. It rolls to zero once its duration has
// elapsed since the window start.
type window struct {
	start    time.Time
	duration time.Duration
	value    float64
}

func newWindow(duration time.Duration, now time.Time) *window {
	return &window{start: now, duration: duration}
}

// roll resets the window when its start is older than its duration.
func (w *window) roll(now time.Time) {
	if now.Sub(w.start) >= w.duration {
		w.start = now
		w.value = 0
	}
}
