package governance

import (
	"fmt"
	"strings"
	"sync"
)

// Policy controls which models a tenant may call and how much a single call
// may cost. Model patterns support glob wildcards where '*' matches zero or
// more characters.
type Policy struct {
	ApprovedModels    []string `json:"approved_models" yaml:"approved_models"`
	BlockedModels     []string `json:"blocked_models" yaml:"blocked_models"`
	RequireApproval   bool     `json:"require_approval" yaml:"require_approval"`
	MaxCostPerCallUSD float64  `json:"max_cost_per_call_usd" yaml:"max_cost_per_call_usd"`
}

// Error is a governance denial with a machine-readable code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Denial codes.
const (
	CodeModelNotApproved = "model_not_approved"
	CodeBudgetExceeded   = "budget_exceeded"
)

// Governor validates model usage against per-tenant policies with a default
// fallback.
type Governor struct {
	mu            sync.RWMutex
	defaultPolicy Policy
	tenants       map[string]Policy
}

// NewGovernor creates a governor with the given default policy.
func NewGovernor(defaultPolicy Policy) *Governor {
	return &Governor{
		defaultPolicy: defaultPolicy,
		tenants:       make(map[string]Policy),
	}
}

// SetPolicy installs a tenant-specific policy.
func (g *Governor) SetPolicy(tenantID string, policy Policy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tenants[tenantID] = policy
}

// PolicyFor resolves a tenant's policy, falling back to the default.
func (g *Governor) PolicyFor(tenantID string) Policy {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if policy, ok := g.tenants[tenantID]; ok {
		return policy
	}
	return g.defaultPolicy
}

// Validate checks whether the tenant may invoke the model at the estimated
// cost. A zero estimatedCost skips the budget check.
func (g *Governor) Validate(tenantID, model string, estimatedCost float64) error {
	policy := g.PolicyFor(tenantID)

	if matchAny(policy.BlockedModels, model) {
		return &Error{
			Code:    CodeModelNotApproved,
			Message: fmt.Sprintf("model '%s' is blocked for tenant '%s'", model, tenantID),
		}
	}

	if policy.RequireApproval && !matchAny(policy.ApprovedModels, model) {
		return &Error{
			Code:    CodeModelNotApproved,
			Message: fmt.Sprintf("model '%s' is not approved for tenant '%s'", model, tenantID),
		}
	}

	if policy.MaxCostPerCallUSD > 0 && estimatedCost > policy.MaxCostPerCallUSD {
		return &Error{
			Code: CodeBudgetExceeded,
			Message: fmt.Sprintf("estimated cost $%.6f exceeds per-call limit $%.6f",
				estimatedCost, policy.MaxCostPerCallUSD),
		}
	}

	return nil
}

func matchAny(patterns []string, model string) bool {
	for _, pattern := range patterns {
		if matchGlob(pattern, model) {
			return true
		}
	}
	return false
}

// matchGlob matches s against pattern where '*' matches zero or more
// characters.
func matchGlob(pattern, s string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == s
	}

	parts := strings.Split(pattern, "*")

	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]

	last := parts[len(parts)-1]
	if !strings.HasSuffix(s, last) {
		return false
	}
	s = s[:len(s)-len(last)]

	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		i := strings.Index(s, part)
		if i < 0 {
			return false
		}
		s = s[i+len(part):]
	}
	return true
}
