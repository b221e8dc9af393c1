// Package task models the externally visible unit of work: a task with a
// lifecycle state machine, its message history, and its artifacts.
package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is a task lifecycle state.
type State string

const (
	StateSubmitted     State = "submitted"
	StateWorking       State = "working"
	StateInputRequired State = "input_required"
	StateAuthRequired  State = "auth_required"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
	StateCancelled     State = "cancelled"
	StateRejected      State = "rejected"
)

// legalTransitions enumerates the permitted state edges. Terminal states
// have no outbound edges.
var legalTransitions = map[State][]State{
	StateSubmitted:     {StateWorking, StateFailed, StateCancelled, StateRejected},
	StateWorking:       {StateInputRequired, StateAuthRequired, StateCompleted, StateFailed, StateCancelled},
	StateInputRequired: {StateWorking, StateFailed, StateCancelled},
	StateAuthRequired:  {StateWorking, StateFailed, StateCancelled},
}

// CanTransitionTo reports whether the edge s → next is permitted.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state has no outbound edges.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateRejected:
		return true
	}
	return false
}

// StateTransitionError reports an attempt to traverse a forbidden edge.
type StateTransitionError struct {
	TaskID string
	From   State
	To     State
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("task %s: illegal state transition %s → %s", e.TaskID, e.From, e.To)
}

// Message part types. TextPart is the only variant today; the discriminator
// reserves room for more.
const PartTypeText = "text"

// Part is one piece of a message, discriminated by Type.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// Message is one turn in a task's history. Every message carries at least
// one part.
type Message struct {
	Role  string `json:"role"` // user, agent
	Parts []Part `json:"parts"`
}

// Artifact type discriminators.
const (
	ArtifactDocument   = "document"
	ArtifactDataset    = "dataset"
	ArtifactCode       = "code"
	ArtifactImage      = "image"
	ArtifactStructured = "structured"
)

// Artifact is a typed, tenant-scoped output blob attached to a task.
type Artifact struct {
	ID               string                 `json:"id"`
	Type             string                 `json:"type"`
	Title            string                 `json:"title"`
	InlineContent    string                 `json:"inline_content"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	MIMEType         string                 `json:"mime_type,omitempty"`
	TenantID         string                 `json:"tenant_id"`
	CreatedByAgentID string                 `json:"created_by_agent_id,omitempty"`
}

// Task is the unit of work submitted to an agent. Identity fields are
// immutable after creation; state moves only along legal edges.
type Task struct {
	ID       string `json:"id"`
	AgentID  string `json:"agent_id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`

	State     State      `json:"state"`
	Messages  []Message  `json:"messages"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	Error     string     `json:"error,omitempty"`

	ParentTaskID string `json:"parent_task_id,omitempty"`
	SkillName    string `json:"skill_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a submitted task.
func New(agentID, tenantID, userID string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		TenantID:  tenantID,
		UserID:    userID,
		State:     StateSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo moves the task along a legal edge, or fails with a
// StateTransitionError.
func (t *Task) TransitionTo(next State) error {
	if !t.State.CanTransitionTo(next) {
		return &StateTransitionError{TaskID: t.ID, From: t.State, To: next}
	}
	t.State = next
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// AddMessage appends a turn to the task's history. Messages without parts
// are rejected.
func (t *Task) AddMessage(role string, parts ...Part) error {
	if len(parts) == 0 {
		return fmt.Errorf("task %s: message must carry at least one part", t.ID)
	}
	t.Messages = append(t.Messages, Message{Role: role, Parts: parts})
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// AddArtifact attaches an artifact, stamping it with the task's tenant.
func (t *Task) AddArtifact(a Artifact) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.TenantID = t.TenantID
	t.Artifacts = append(t.Artifacts, a)
	t.UpdatedAt = time.Now().UTC()
}
