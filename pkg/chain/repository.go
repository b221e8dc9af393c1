package chain

import (
	"context"
	"sort"
	"sync"
	"time"
)

// NotFoundError reports a missing (or tenant-invisible) chain.
type NotFoundError struct {
	ChainID string
}

func (e *NotFoundError) Error() string {
	return "chain not found: " + e.ChainID
}

// Summary is a chain without its steps, for tenant-scoped listings.
type Summary struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id"`
	AgentID     string     `json:"agent_id"`
	TenantID    string     `json:"tenant_id,omitempty"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Metrics     Metrics    `json:"metrics"`
}

// Repository is the persistence contract for chains and their steps.
// Persisted chains are read-only; rehydration reproduces the original
// metrics, visibility, and parent/child relationships exactly.
type Repository interface {
	// Save persists the chain and all its steps.
	Save(ctx context.Context, c *Chain) error

	// GetByID returns the chain with steps ordered by step number.
	GetByID(ctx context.Context, chainID string) (*Chain, error)

	// GetByTask returns all chains for a task, newest first.
	GetByTask(ctx context.Context, taskID string) ([]*Chain, error)

	// ListByTenant returns chain summaries for a tenant, newest first by
	// started_at. An empty status matches all statuses.
	ListByTenant(ctx context.Context, tenantID string, status Status, limit, offset int) ([]Summary, error)

	// Delete removes the chain and cascades to its steps. Returns false
	// when no such chain exists.
	Delete(ctx context.Context, chainID string) (bool, error)
}

// InMemoryRepository is a thread-safe in-memory Repository, suitable for
// tests and single-instance deployments.
type InMemoryRepository struct {
	mu     sync.RWMutex
	chains map[string]*Chain
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		chains: make(map[string]*Chain),
	}
}

func (r *InMemoryRepository) Save(_ context.Context, c *Chain) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chains[c.ID] = cloneChain(c)
	return nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, chainID string) (*Chain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.chains[chainID]
	if !ok {
		return nil, &NotFoundError{ChainID: chainID}
	}
	return cloneChain(c), nil
}

func (r *InMemoryRepository) GetByTask(_ context.Context, taskID string) ([]*Chain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Chain
	for _, c := range r.chains {
		if c.TaskID == taskID {
			result = append(result, cloneChain(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	return result, nil
}

func (r *InMemoryRepository) ListByTenant(_ context.Context, tenantID string, status Status, limit, offset int) ([]Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Chain
	for _, c := range r.chains {
		if c.TenantID != tenantID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	if offset >= len(matched) {
		return []Summary{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	summaries := make([]Summary, 0, len(matched))
	for _, c := range matched {
		summaries = append(summaries, Summary{
			ID:          c.ID,
			TaskID:      c.TaskID,
			AgentID:     c.AgentID,
			TenantID:    c.TenantID,
			Status:      c.Status,
			StartedAt:   c.StartedAt,
			CompletedAt: c.CompletedAt,
			Metrics:     c.Metrics,
		})
	}
	return summaries, nil
}

func (r *InMemoryRepository) Delete(_ context.Context, chainID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.chains[chainID]; !ok {
		return false, nil
	}
	delete(r.chains, chainID)
	return true, nil
}

// cloneChain copies the chain so stored state cannot be mutated through the
// caller's reference. Step payloads are treated as immutable after append.
func cloneChain(c *Chain) *Chain {
	clone := &Chain{
		ID:        c.ID,
		TaskID:    c.TaskID,
		AgentID:   c.AgentID,
		TenantID:  c.TenantID,
		Status:    c.Status,
		StartedAt: c.StartedAt,
		Metrics:   c.Metrics,
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		clone.CompletedAt = &t
	}
	clone.Steps = make([]*Step, len(c.Steps))
	for i, s := range c.Steps {
		step := *s
		clone.Steps[i] = &step
	}
	clone.ChildChainIDs = append([]string(nil), c.ChildChainIDs...)
	return clone
}
