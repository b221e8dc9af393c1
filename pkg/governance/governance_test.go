package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		s       string
		want    bool
	}{
		{"gpt-4o", "gpt-4o", true},
		{"gpt-4o", "gpt-4o-mini", false},
		{"gpt-*", "gpt-4o-mini", true},
		{"gpt-*", "claude-3-opus", false},
		{"*", "anything", true},
		{"*", "", true},
		{"claude-3-*-sonnet", "claude-3-5-sonnet", true},
		{"claude-3-*-sonnet", "claude-3-5-haiku", false},
		{"*-mini", "gpt-4o-mini", true},
		{"*-mini", "gpt-4o", false},
		{"gpt-*o*", "gpt-4o", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, matchGlob(tt.pattern, tt.s),
			"matchGlob(%q, %q)", tt.pattern, tt.s)
	}
}

func TestGovernor_Validate(t *testing.T) {
	g := NewGovernor(Policy{
		ApprovedModels:    []string{"gpt-4o*", "claude-3-5-sonnet"},
		BlockedModels:     []string{"gpt-3.5-*"},
		RequireApproval:   true,
		MaxCostPerCallUSD: 1.0,
	})

	t.Run("approved model passes", func(t *testing.T) {
		require.NoError(t, g.Validate("t1", "gpt-4o-mini", 0.5))
	})

	t.Run("blocked model fails", func(t *testing.T) {
		err := g.Validate("t1", "gpt-3.5-turbo", 0.01)
		var gErr *Error
		require.ErrorAs(t, err, &gErr)
		assert.Equal(t, CodeModelNotApproved, gErr.Code)
	})

	t.Run("unapproved model fails when approval required", func(t *testing.T) {
		err := g.Validate("t1", "claude-3-opus", 0.01)
		var gErr *Error
		require.ErrorAs(t, err, &gErr)
		assert.Equal(t, CodeModelNotApproved, gErr.Code)
	})

	t.Run("cost exactly at limit passes", func(t *testing.T) {
		require.NoError(t, g.Validate("t1", "gpt-4o", 1.0))
	})

	t.Run("cost just over limit fails", func(t *testing.T) {
		err := g.Validate("t1", "gpt-4o", 1.000001)
		var gErr *Error
		require.ErrorAs(t, err, &gErr)
		assert.Equal(t, CodeBudgetExceeded, gErr.Code)
	})

	t.Run("tenant policy overrides default", func(t *testing.T) {
		g.SetPolicy("t2", Policy{RequireApproval: false})
		require.NoError(t, g.Validate("t2", "claude-3-opus", 100))
	})
}

func TestGovernor_NoApprovalRequired(t *testing.T) {
	g := NewGovernor(Policy{RequireApproval: false})
	require.NoError(t, g.Validate("t1", "any-model", 0))
}

func TestCostTable_Lookup(t *testing.T) {
	table := NewCostTable()

	known := table.Lookup("gpt-4o-mini")
	assert.Equal(t, 0.15, known.InputPer1M)

	unknown := table.Lookup("some-new-model")
	assert.Equal(t, defaultModelCost, unknown)

	table.SetModelCost("some-new-model", ModelCost{InputPer1M: 1, OutputPer1M: 2, MaxOutputTokens: 100})
	assert.Equal(t, 1.0, table.Lookup("some-new-model").InputPer1M)
}

func TestCostTable_EstimateRequest(t *testing.T) {
	table := NewCostTable()

	estimate := table.EstimateRequest("gpt-4o", []string{"What is 2+2?"}, 1000)
	assert.Greater(t, estimate, 0.0)

	// Half the output budget at the output rate dominates a short prompt.
	outputOnly := 500.0 * 10 / 1_000_000
	assert.InDelta(t, outputOnly, estimate, 0.001)

	// Larger output budget means larger estimate.
	bigger := table.EstimateRequest("gpt-4o", []string{"What is 2+2?"}, 8000)
	assert.Greater(t, bigger, estimate)
}

func TestCostTable_ActualCost(t *testing.T) {
	table := NewCostTable()

	cost := table.ActualCost("gpt-4o", 1_000_000, 1_000_000)
	assert.InDelta(t, 2.5+10, cost, 1e-9)

	assert.Equal(t, 0.0, table.ActualCost("gpt-4o", 0, 0))
}

func TestTokenEstimator(t *testing.T) {
	e := NewTokenEstimator()

	n := e.Estimate("gpt-4o", "hello world")
	assert.Greater(t, n, 0)
	assert.Less(t, n, 10)

	msgs := e.EstimateMessages("gpt-4o", []string{"hello", "world"})
	assert.Greater(t, msgs, n)
}
