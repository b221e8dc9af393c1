// Package ratelimit enforces per-tenant sliding-window quotas over tool
// calls, token usage, and spend.
//
// Quota consumption is atomic: a denied check never advances any counter.
// Calls for the same tenant are serialized; tenants never block each other.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/omniforge-ai/omniforge/pkg/tool"
)

// Limiter tracks per-tenant usage windows.
type Limiter struct {
	mu       sync.RWMutex
	defaults Config
	tenants  map[string]*tenantState

	// now is replaceable for window-rollover tests.
	now func() time.Time
}

type tenantState struct {
	mu  sync.Mutex
	cfg Config

	calls        map[tool.Category]*window // per-minute call counters
	tokensMinute *window
	tokensHour   *window
	costHour     *window
	costDay      *window
}

// NewLimiter creates a limiter with the given default caps.
func NewLimiter(defaults Config) (*Limiter, error) {
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}
	return &Limiter{
		defaults: defaults,
		tenants:  make(map[string]*tenantState),
		now:      time.Now,
	}, nil
}

// Configure installs tenant-specific caps, resetting that tenant's counters.
func (l *Limiter) Configure(tenantID string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config for tenant %s: %w", tenantID, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.tenants[tenantID] = l.newTenantState(cfg)
	return nil
}

// Reset drops a tenant's counters, reverting it to the default caps.
func (l *Limiter) Reset(tenantID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.tenants, tenantID)
}

// CheckAndConsume evaluates every cap applicable to the call and, only when
// all pass, consumes the budget. A denial consumes nothing.
func (l *Limiter) CheckAndConsume(tenantID string, category tool.Category, tokens int, cost float64) Decision {
	state := l.tenantState(tenantID)

	state.mu.Lock()
	defer state.mu.Unlock()

	now := l.now()
	callWindow := state.calls[category]
	callWindow.roll(now)
	state.tokensMinute.roll(now)
	state.tokensHour.roll(now)
	state.costHour.roll(now)
	state.costDay.roll(now)

	// Evaluate all caps before touching any counter.
	if cap := state.callCap(category); callWindow.value+1 > float64(cap) {
		return Decision{Reason: fmt.Sprintf("rate limit: %s calls per minute exceeded (%d/%d)",
			category, int64(callWindow.value), cap)}
	}
	if tokens > 0 {
		if state.tokensMinute.value+float64(tokens) > float64(state.cfg.TokensPerMinute) {
			return Decision{Reason: fmt.Sprintf("rate limit: tokens per minute exceeded (%d/%d)",
				int64(state.tokensMinute.value), state.cfg.TokensPerMinute)}
		}
		if state.tokensHour.value+float64(tokens) > float64(state.cfg.TokensPerHour) {
			return Decision{Reason: fmt.Sprintf("rate limit: tokens per hour exceeded (%d/%d)",
				int64(state.tokensHour.value), state.cfg.TokensPerHour)}
		}
	}
	if cost > 0 {
		if state.costHour.value+cost > state.cfg.CostPerHourUSD {
			return Decision{Reason: fmt.Sprintf("rate limit: cost per hour exceeded ($%.4f/$%.2f)",
				state.costHour.value, state.cfg.CostPerHourUSD)}
		}
		if state.costDay.value+cost > state.cfg.CostPerDayUSD {
			return Decision{Reason: fmt.Sprintf("rate limit: cost per day exceeded ($%.4f/$%.2f)",
				state.costDay.value, state.cfg.CostPerDayUSD)}
		}
	}

	callWindow.value++
	state.tokensMinute.value += float64(tokens)
	state.tokensHour.value += float64(tokens)
	state.costHour.value += cost
	state.costDay.value += cost

	return Decision{Allowed: true}
}

// tenantState returns the tenant's state, creating one with default caps on
// first use.
func (l *Limiter) tenantState(tenantID string) *tenantState {
	l.mu.RLock()
	state, ok := l.tenants[tenantID]
	l.mu.RUnlock()
	if ok {
		return state
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if state, ok := l.tenants[tenantID]; ok {
		return state
	}
	state = l.newTenantState(l.defaults)
	l.tenants[tenantID] = state
	return state
}

func (l *Limiter) newTenantState(cfg Config) *tenantState {
	now := l.now()
	return &tenantState{
		cfg: cfg,
		calls: map[tool.Category]*window{
			tool.CategoryLLM:      newWindow(time.Minute, now),
			tool.CategoryExternal: newWindow(time.Minute, now),
			tool.CategoryDatabase: newWindow(time.Minute, now),
		},
		tokensMinute: newWindow(time.Minute, now),
		tokensHour:   newWindow(time.Hour, now),
		costHour:     newWindow(time.Hour, now),
		costDay:      newWindow(24*time.Hour, now),
	}
}

func (s *tenantState) callCap(category tool.Category) int64 {
	switch category {
	case tool.CategoryLLM:
		return s.cfg.LLMCallsPerMinute
	case tool.CategoryDatabase:
		return s.cfg.DatabaseCallsPerMinute
	default:
		return s.cfg.ExternalCallsPerMinute
	}
}
