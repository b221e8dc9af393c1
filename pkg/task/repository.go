package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// NotFoundError reports a missing task. A tenant mismatch is reported the
// same way, so callers cannot probe for foreign tasks.
type NotFoundError struct {
	TaskID string
}

func (e *NotFoundError) Error() string {
	return "task not found: " + e.TaskID
}

// Repository is the persistence contract for tasks. Every id-taking
// operation is tenant-scoped: a mismatched tenant behaves exactly like a
// missing task. List operations return newest-first by creation time.
type Repository interface {
	// Get returns the task, or NotFoundError.
	Get(ctx context.Context, tenantID, taskID string) (*Task, error)

	// Save creates the task. A parent_task_id must name an existing task
	// in the same tenant.
	Save(ctx context.Context, t *Task) error

	// Update overwrites an existing task. The stored state must legally
	// reach the new state (or be unchanged).
	Update(ctx context.Context, t *Task) error

	// Delete removes the task, or returns NotFoundError.
	Delete(ctx context.Context, tenantID, taskID string) error

	ListByAgent(ctx context.Context, tenantID, agentID string, limit int) ([]*Task, error)
	ListByParent(ctx context.Context, tenantID, parentID string, limit int) ([]*Task, error)
	ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*Task, error)
	ListBySkill(ctx context.Context, tenantID, skillName string, limit int) ([]*Task, error)
}

// InMemoryRepository is a thread-safe in-memory Repository.
type InMemoryRepository struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{tasks: make(map[string]*Task)}
}

func (r *InMemoryRepository) Get(_ context.Context, tenantID, taskID string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[taskID]
	if !ok || t.TenantID != tenantID {
		return nil, &NotFoundError{TaskID: taskID}
	}
	return cloneTask(t), nil
}

func (r *InMemoryRepository) Save(_ context.Context, t *Task) error {
	if err := validateForSave(t); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[t.ID]; exists {
		return fmt.Errorf("task already exists: %s", t.ID)
	}
	if t.ParentTaskID != "" {
		parent, ok := r.tasks[t.ParentTaskID]
		if !ok || parent.TenantID != t.TenantID {
			return &NotFoundError{TaskID: t.ParentTaskID}
		}
	}

	r.tasks[t.ID] = cloneTask(t)
	return nil
}

func (r *InMemoryRepository) Update(_ context.Context, t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tasks[t.ID]
	if !ok || stored.TenantID != t.TenantID {
		return &NotFoundError{TaskID: t.ID}
	}
	if stored.State != t.State && !stored.State.CanTransitionTo(t.State) {
		return &StateTransitionError{TaskID: t.ID, From: stored.State, To: t.State}
	}
	// Reparenting after insert could form a cycle Save would have caught.
	if stored.ParentTaskID != t.ParentTaskID {
		return fmt.Errorf("task %s: parent_task_id cannot change", t.ID)
	}

	r.tasks[t.ID] = cloneTask(t)
	return nil
}

func (r *InMemoryRepository) Delete(_ context.Context, tenantID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok || t.TenantID != tenantID {
		return &NotFoundError{TaskID: taskID}
	}
	delete(r.tasks, taskID)
	return nil
}

func (r *InMemoryRepository) ListByAgent(_ context.Context, tenantID, agentID string, limit int) ([]*Task, error) {
	return r.list(func(t *Task) bool {
		return t.TenantID == tenantID && t.AgentID == agentID
	}, limit, 0), nil
}

func (r *InMemoryRepository) ListByParent(_ context.Context, tenantID, parentID string, limit int) ([]*Task, error) {
	return r.list(func(t *Task) bool {
		return t.TenantID == tenantID && t.ParentTaskID == parentID
	}, limit, 0), nil
}

func (r *InMemoryRepository) ListByTenant(_ context.Context, tenantID string, limit, offset int) ([]*Task, error) {
	return r.list(func(t *Task) bool {
		return t.TenantID == tenantID
	}, limit, offset), nil
}

func (r *InMemoryRepository) ListBySkill(_ context.Context, tenantID, skillName string, limit int) ([]*Task, error) {
	return r.list(func(t *Task) bool {
		return t.TenantID == tenantID && t.SkillName == skillName
	}, limit, 0), nil
}

func (r *InMemoryRepository) list(match func(*Task) bool, limit, offset int) []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Task
	for _, t := range r.tasks {
		if match(t) {
			result = append(result, cloneTask(t))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if offset >= len(result) {
		return []*Task{}
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result
}

func validateForSave(t *Task) error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if t.TenantID == "" {
		return fmt.Errorf("task %s: tenant id is required", t.ID)
	}
	if t.ParentTaskID == t.ID {
		return fmt.Errorf("task %s: cannot be its own parent", t.ID)
	}
	for i, m := range t.Messages {
		if len(m.Parts) == 0 {
			return fmt.Errorf("task %s: message %d has no parts", t.ID, i)
		}
	}
	return nil
}

func cloneTask(t *Task) *Task {
	clone := *t
	clone.Messages = make([]Message, len(t.Messages))
	for i, m := range t.Messages {
		clone.Messages[i] = Message{Role: m.Role, Parts: append([]Part(nil), m.Parts...)}
	}
	clone.Artifacts = append([]Artifact(nil), t.Artifacts...)
	return &clone
}
