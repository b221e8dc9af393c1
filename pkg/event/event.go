// Package event defines the typed progress events streamed to task
// submitters and the caller-owned queue that carries them.
package event

import (
	"time"

	"github.com/omniforge-ai/omniforge/pkg/chain"
)

// Type tags an event.
type Type string

const (
	TypeChainStarted   Type = "chain_started"
	TypeReasoningStep  Type = "reasoning_step"
	TypeChainCompleted Type = "chain_completed"
	TypeChainFailed    Type = "chain_failed"
	TypeTaskStatus     Type = "task_status"
	TypeTaskMessage    Type = "task_message"
	TypeTaskDone       Type = "task_done"
	TypeTaskError      Type = "task_error"
)

// Event is one entry in the pipeline. Every event carries the task id and a
// timestamp; the remaining fields depend on Type.
type Event struct {
	Type      Type      `json:"type"`
	TaskID    string    `json:"task_id"`
	Timestamp time.Time `json:"timestamp"`

	ChainID string      `json:"chain_id,omitempty"`
	Step    *chain.Step `json:"step,omitempty"`

	// State carries the task state for task_status, and the final state
	// for task_done.
	State string `json:"state,omitempty"`

	// Message carries agent output text for task_message.
	Message   string `json:"message,omitempty"`
	IsPartial bool   `json:"is_partial,omitempty"`

	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func now() time.Time { return time.Now().UTC() }

// ChainStarted marks the beginning of a reasoning chain.
func ChainStarted(taskID, chainID string) Event {
	return Event{Type: TypeChainStarted, TaskID: taskID, ChainID: chainID, Timestamp: now()}
}

// ReasoningStep carries an appended chain step.
func ReasoningStep(taskID, chainID string, step *chain.Step) Event {
	return Event{Type: TypeReasoningStep, TaskID: taskID, ChainID: chainID, Step: step, Timestamp: now()}
}

// ChainCompleted marks successful chain completion.
func ChainCompleted(taskID, chainID string) Event {
	return Event{Type: TypeChainCompleted, TaskID: taskID, ChainID: chainID, Timestamp: now()}
}

// ChainFailed marks chain failure with the causing error.
func ChainFailed(taskID, chainID, errorCode, errorMessage string) Event {
	return Event{
		Type: TypeChainFailed, TaskID: taskID, ChainID: chainID,
		ErrorCode: errorCode, ErrorMessage: errorMessage, Timestamp: now(),
	}
}

// TaskStatus reports a task state change.
func TaskStatus(taskID, state string) Event {
	return Event{Type: TypeTaskStatus, TaskID: taskID, State: state, Timestamp: now()}
}

// TaskMessage carries agent output.
func TaskMessage(taskID, message string, isPartial bool) Event {
	return Event{Type: TypeTaskMessage, TaskID: taskID, Message: message, IsPartial: isPartial, Timestamp: now()}
}

// TaskDone is the final event of a successful or failed execution.
func TaskDone(taskID, finalState string) Event {
	return Event{Type: TypeTaskDone, TaskID: taskID, State: finalState, Timestamp: now()}
}

// TaskError reports a top-level execution error.
func TaskError(taskID, errorCode, errorMessage string) Event {
	return Event{
		Type: TypeTaskError, TaskID: taskID,
		ErrorCode: errorCode, ErrorMessage: errorMessage, Timestamp: now(),
	}
}
