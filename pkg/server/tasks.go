package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/omniforge-ai/omniforge/pkg/auth"
	"github.com/omniforge-ai/omniforge/pkg/chain"
	"github.com/omniforge-ai/omniforge/pkg/driver"
	"github.com/omniforge-ai/omniforge/pkg/event"
	"github.com/omniforge-ai/omniforge/pkg/task"
	"github.com/omniforge-ai/omniforge/pkg/tool"
)

type submitTaskRequest struct {
	MessageParts []task.Part `json:"message_parts"`
	TenantID     string      `json:"tenant_id"`
	UserID       string      `json:"user_id"`
	ParentTaskID string      `json:"parent_task_id,omitempty"`
}

// handleSubmitTask creates a task and streams its execution as server-sent
// events. The response stays open until the task reaches a terminal state or
// the client disconnects.
func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	agent, ok := s.agents[agentID]
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found: "+agentID)
		return
	}

	var req submitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.MessageParts) == 0 {
		writeError(w, http.StatusBadRequest, "message_parts must not be empty")
		return
	}

	// A validated tenant claim always wins over the request body.
	tenant := req.TenantID
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil && claims.TenantID != "" {
		tenant = claims.TenantID
	}
	if tenant == "" {
		tenant = s.defTenant
	}
	if tenant == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	t := task.New(agentID, tenant, req.UserID)
	t.ParentTaskID = req.ParentTaskID
	if err := t.AddMessage("user", req.MessageParts...); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.tasks.Save(r.Context(), t); err != nil {
		var notFound *task.NotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := t.TransitionTo(task.StateWorking); err == nil {
		_ = s.tasks.Update(r.Context(), t)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	drv := driver.New(s.exec, s.chains, driver.Config{
		Model:         agent.Model,
		Temperature:   agent.Temperature,
		MaxTokens:     agent.MaxTokens,
		MaxIterations: agent.MaxIterations,
		SystemPrompt:  agent.SystemPrompt,
		AllowedTools:  agent.AllowedTools,
	})

	q := event.NewQueue(0)
	drv.Start(r.Context(), driver.Request{
		TaskID:   t.ID,
		AgentID:  agentID,
		TenantID: tenant,
		Input:    joinTextParts(req.MessageParts),
		Budget: tool.CallContext{
			TaskID:    t.ID,
			AgentID:   agentID,
			TenantID:  tenant,
			MaxTokens: agent.MaxTokens,
		},
	}, q)

	s.streamEvents(w, flusher, callerRole(r), t, q)
}

// streamEvents drains the queue into SSE frames and records the terminal
// outcome on the task.
func (s *Server) streamEvents(w http.ResponseWriter, flusher http.Flusher, role string, t *task.Task, q *event.Queue) {
	var finalState task.State
	var errorCode, errorMessage string

	for e := range q.Events() {
		switch e.Type {
		case event.TypeTaskStatus:
			writeSSE(w, flusher, "status", map[string]interface{}{
				"type":    "status",
				"task_id": e.TaskID,
				"state":   e.State,
			})

		case event.TypeTaskMessage:
			part := task.TextPart(e.Message)
			_ = t.AddMessage("agent", part)
			writeSSE(w, flusher, "message", map[string]interface{}{
				"type":          "message",
				"task_id":       e.TaskID,
				"message_parts": []task.Part{part},
				"is_partial":    e.IsPartial,
			})

		case event.TypeReasoningStep:
			// The caller's role applies to the live stream too.
			visible := s.vis.FilterSteps([]*chain.Step{e.Step}, role)
			if len(visible) == 0 {
				continue
			}
			writeSSE(w, flusher, "reasoning_step", map[string]interface{}{
				"type":     "reasoning_step",
				"task_id":  e.TaskID,
				"chain_id": e.ChainID,
				"step":     visible[0],
			})

		case event.TypeTaskError:
			errorCode, errorMessage = e.ErrorCode, e.ErrorMessage
			writeSSE(w, flusher, "error", map[string]interface{}{
				"type":          "error",
				"task_id":       e.TaskID,
				"error_code":    e.ErrorCode,
				"error_message": e.ErrorMessage,
			})

		case event.TypeTaskDone:
			finalState = task.State(e.State)
			writeSSE(w, flusher, "done", map[string]interface{}{
				"type":        "done",
				"task_id":     e.TaskID,
				"final_state": e.State,
			})
		}
	}

	if finalState == "" {
		// The worker never reached a terminal event (client disconnect).
		finalState = task.StateCancelled
	}
	if err := t.TransitionTo(finalState); err == nil {
		if errorMessage != "" {
			t.Error = fmt.Sprintf("%s: %s", errorCode, errorMessage)
		}
		// Recording the outcome must survive client disconnects.
		if err := s.tasks.Update(context.Background(), t); err != nil {
			slog.Error("failed to record task outcome", "task_id", t.ID, "error", err)
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, name string, data interface{}) {
	encoded, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to encode sse frame", "event", name, "error", err)
		return
	}
	// Frames are always terminated by a blank line.
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, encoded)
	flusher.Flush()
}

func joinTextParts(parts []task.Part) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == task.PartTypeText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}
