// Package chain models the reasoning chain: the append-only, fully
// inspectable record of every step an agent takes while executing a task.
package chain

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omniforge-ai/omniforge/pkg/tool"
)

// Status is the lifecycle state of a chain.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// StepType identifies the kind of reasoning step.
type StepType string

const (
	StepThinking   StepType = "thinking"
	StepToolCall   StepType = "tool_call"
	StepToolResult StepType = "tool_result"
	StepSynthesis  StepType = "synthesis"
)

// VisibilityLevel controls how a step is rendered to non-privileged viewers.
type VisibilityLevel string

const (
	VisibilityFull    VisibilityLevel = "full"
	VisibilitySummary VisibilityLevel = "summary"
	VisibilityHidden  VisibilityLevel = "hidden"
)

// Visibility is a step's own visibility marking.
type Visibility struct {
	Level  VisibilityLevel `json:"level"`
	Reason string          `json:"reason,omitempty"`
}

// Step is one append-only node in a chain. Step numbers are 0-based and
// gap-free within a chain.
type Step struct {
	ID           string                 `json:"id"`
	StepNumber   int                    `json:"step_number"`
	Type         StepType               `json:"type"`
	Timestamp    time.Time              `json:"timestamp"`
	ParentStepID string                 `json:"parent_step_id,omitempty"`
	Payload      map[string]interface{} `json:"payload"`
	Visibility   Visibility             `json:"visibility"`
	TokensUsed   int                    `json:"tokens_used"`
	Cost         float64                `json:"cost"`
}

// Metrics is a deterministic fold over a chain's steps, maintained
// incrementally on every append.
type Metrics struct {
	TotalSteps  int     `json:"total_steps"`
	LLMCalls    int     `json:"llm_calls"`
	ToolCalls   int     `json:"tool_calls"`
	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
}

// Chain is the ordered record of reasoning steps for a single task
// execution. It is exclusively owned by the engine that builds it; once
// persisted it is read-only.
type Chain struct {
	ID            string     `json:"id"`
	TaskID        string     `json:"task_id"`
	AgentID       string     `json:"agent_id"`
	TenantID      string     `json:"tenant_id,omitempty"`
	Status        Status     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Steps         []*Step    `json:"steps"`
	Metrics       Metrics    `json:"metrics"`
	ChildChainIDs []string   `json:"child_chain_ids,omitempty"`

	mu sync.Mutex
}

// New creates a running chain for a task execution.
func New(taskID, agentID, tenantID string) *Chain {
	return &Chain{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		AgentID:   agentID,
		TenantID:  tenantID,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

// Append adds a step, assigning its number and updating metrics.
func (c *Chain) Append(stepType StepType, payload map[string]interface{}, opts ...StepOption) *Step {
	c.mu.Lock()
	defer c.mu.Unlock()

	step := &Step{
		ID:         uuid.New().String(),
		StepNumber: len(c.Steps),
		Type:       stepType,
		Timestamp:  time.Now().UTC(),
		Payload:    payload,
		Visibility: Visibility{Level: VisibilityFull},
	}
	for _, opt := range opts {
		opt(step)
	}

	c.Steps = append(c.Steps, step)
	c.applyToMetrics(step)
	return step
}

// StepOption customizes an appended step.
type StepOption func(*Step)

// WithParent links the step to an earlier step.
func WithParent(parentStepID string) StepOption {
	return func(s *Step) { s.ParentStepID = parentStepID }
}

// WithVisibility marks the step's own visibility level.
func WithVisibility(v Visibility) StepOption {
	return func(s *Step) { s.Visibility = v }
}

// WithUsage records token and cost accounting on the step.
func WithUsage(tokens int, cost float64) StepOption {
	return func(s *Step) {
		s.TokensUsed = tokens
		s.Cost = cost
	}
}

func (c *Chain) applyToMetrics(step *Step) {
	c.Metrics.TotalSteps++
	c.Metrics.TotalTokens += step.TokensUsed
	c.Metrics.TotalCost += step.Cost
	if step.Type == StepToolCall {
		c.Metrics.ToolCalls++
		if toolType, _ := step.Payload["tool_type"].(string); toolType == string(tool.TypeLLM) {
			c.Metrics.LLMCalls++
		}
	}
}

// Complete marks the chain completed.
func (c *Chain) Complete() { c.finish(StatusCompleted) }

// Fail marks the chain failed.
func (c *Chain) Fail() { c.finish(StatusFailed) }

// Cancel marks the chain cancelled.
func (c *Chain) Cancel() { c.finish(StatusCancelled) }

func (c *Chain) finish(status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Status != StatusRunning {
		return
	}
	c.Status = status
	now := time.Now().UTC()
	c.CompletedAt = &now
}

// AddChildChain links a delegated sub-agent chain.
func (c *Chain) AddChildChain(chainID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ChildChainIDs = append(c.ChildChainIDs, chainID)
}

// LastStep returns the most recently appended step, or nil.
func (c *Chain) LastStep() *Step {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.Steps) == 0 {
		return nil
	}
	return c.Steps[len(c.Steps)-1]
}

// ComputeMetrics folds steps into metrics. Rehydrated chains must reproduce
// the persisted metrics exactly.
func ComputeMetrics(steps []*Step) Metrics {
	var m Metrics
	for _, step := range steps {
		m.TotalSteps++
		m.TotalTokens += step.TokensUsed
		m.TotalCost += step.Cost
		if step.Type == StepToolCall {
			m.ToolCalls++
			if toolType, _ := step.Payload["tool_type"].(string); toolType == string(tool.TypeLLM) {
				m.LLMCalls++
			}
		}
	}
	return m
}
