// Package driver runs the reason-act-observe loop that turns a submitted
// task into a completed reasoning chain. Each iteration asks the model for a
// structured JSON turn, records its thought, dispatches the named tool, and
// feeds the observation back until the model declares a final answer.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/omniforge-ai/omniforge/pkg/chain"
	"github.com/omniforge-ai/omniforge/pkg/event"
	"github.com/omniforge-ai/omniforge/pkg/executor"
	"github.com/omniforge-ai/omniforge/pkg/llms"
	"github.com/omniforge-ai/omniforge/pkg/observability"
	"github.com/omniforge-ai/omniforge/pkg/reasoning"
	"github.com/omniforge-ai/omniforge/pkg/tool"
)

// Config tunes the loop.
type Config struct {
	Model         string  `yaml:"model"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	MaxIterations int     `yaml:"max_iterations"`

	// SystemPrompt is prepended before the generated tool and format
	// instructions.
	SystemPrompt string `yaml:"system_prompt"`

	// AllowedTools restricts which tools the model may invoke as actions.
	// Empty means every registered tool.
	AllowedTools []string `yaml:"allowed_tools"`
}

// DefaultMaxIterations bounds the loop when the config leaves it unset.
const DefaultMaxIterations = 15

// maxMalformedReplies is how many consecutive unparseable model turns are
// tolerated before the chain fails.
const maxMalformedReplies = 3

// Driver executes tasks against a tool registry and persists the resulting
// chains.
type Driver struct {
	exec *executor.Executor
	repo chain.Repository
	cfg  Config
}

// New creates a driver. repo may be nil to skip persistence.
func New(exec *executor.Executor, repo chain.Repository, cfg Config) *Driver {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	return &Driver{exec: exec, repo: repo, cfg: cfg}
}

// Request identifies one task execution.
type Request struct {
	TaskID   string
	AgentID  string
	TenantID string

	// Input is the user's instruction.
	Input string

	// Budget caps the execution; identity fields are overwritten from the
	// request.
	Budget tool.CallContext
}

// Start runs the request on a background goroutine, streaming progress into
// q. The queue is closed after the final event; the caller drains it.
func (d *Driver) Start(ctx context.Context, req Request, q *event.Queue) {
	go func() {
		defer q.Close()

		start := time.Now()
		_, err := d.Execute(ctx, req, q)
		if metrics := observability.GetGlobalMetrics(); metrics != nil {
			metrics.RecordTaskExecution(context.WithoutCancel(ctx), req.AgentID, time.Since(start), err)
		}
		if err != nil {
			code := CodeOf(err)
			publishFinal(ctx, q, event.TaskError(req.TaskID, code, err.Error()))
			state := "failed"
			if code == CodeCancelled {
				state = "cancelled"
			}
			publishFinal(ctx, q, event.TaskDone(req.TaskID, state))
			return
		}

		_ = q.Publish(ctx, event.TaskDone(req.TaskID, "completed"))
	}()
}

// Execute runs the loop synchronously and returns the final answer. The
// chain is persisted in its terminal state before Execute returns,
// including on failure and cancellation.
func (d *Driver) Execute(ctx context.Context, req Request, q *event.Queue) (string, error) {
	ch := chain.New(req.TaskID, req.AgentID, req.TenantID)
	eng := reasoning.NewEngine(ch, d.exec, q, req.Budget)
	if len(d.cfg.AllowedTools) > 0 {
		eng.RestrictTools(d.cfg.AllowedTools)
	}

	_ = q.Publish(ctx, event.ChainStarted(req.TaskID, ch.ID))
	_ = q.Publish(ctx, event.TaskStatus(req.TaskID, "working"))

	answer, err := d.loop(ctx, req, eng)
	if err != nil {
		if CodeOf(err) == CodeCancelled {
			ch.Cancel()
		} else {
			ch.Fail()
		}
		d.persist(ch)
		publishFinal(ctx, q, event.ChainFailed(req.TaskID, ch.ID, CodeOf(err), err.Error()))
		return "", err
	}

	_ = q.Publish(ctx, event.TaskMessage(req.TaskID, answer, false))

	ch.Complete()
	d.persist(ch)
	_ = q.Publish(ctx, event.ChainCompleted(req.TaskID, ch.ID))
	return answer, nil
}

func (d *Driver) loop(ctx context.Context, req Request, eng *reasoning.Engine) (string, error) {
	messages := []llms.Message{
		{Role: "system", Content: d.systemPrompt(eng.AvailableTools())},
		{Role: "user", Content: req.Input},
	}

	malformed := 0
	var sourceStepIDs []string

	for iteration := 0; iteration < d.cfg.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			return "", &Error{Code: CodeCancelled, Message: "execution cancelled"}
		}

		text, outcome := eng.CallLLM(ctx, d.cfg.Model, messages, d.cfg.MaxTokens, d.cfg.Temperature, true)
		if !outcome.Success {
			return "", &Error{Code: CodeReasoningFailed,
				Message: fmt.Sprintf("llm call failed: %s", outcome.Error)}
		}
		messages = append(messages, llms.Message{Role: "assistant", Content: text})

		r, err := parseReply(text)
		if err != nil {
			malformed++
			slog.Warn("malformed model reply",
				"task_id", req.TaskID, "iteration", iteration, "consecutive", malformed, "error", err)
			// The bad turn goes on the chain, so a persisted failure
			// explains itself.
			eng.AddThinking(ctx, fmt.Sprintf("Model reply could not be parsed: %v", err), 0)
			if malformed >= maxMalformedReplies {
				return "", &Error{Code: CodeReasoningFailed,
					Message: fmt.Sprintf("%d consecutive malformed replies, last error: %v", malformed, err)}
			}
			messages = append(messages, llms.Message{
				Role: "user",
				Content: fmt.Sprintf("Your reply could not be parsed (%v). Respond with a single JSON object "+
					"with keys thought, action, action_input, is_final, final_answer.", err),
			})
			continue
		}
		malformed = 0

		eng.AddThinking(ctx, r.Thought, 0)

		// is_final dominates; "final_answer" as the action is an accepted
		// alternative spelling.
		if r.IsFinal || r.Action == "final_answer" {
			answer := finalAnswer(r)
			eng.AddSynthesis(ctx, answer, sourceStepIDs)
			return answer, nil
		}

		result := eng.CallTool(ctx, r.Action, r.inputMap())
		if result.ResultStepID != "" {
			sourceStepIDs = append(sourceStepIDs, result.ResultStepID)
		}
		messages = append(messages, llms.Message{
			Role:    "user",
			Content: "Observation: " + observation(result),
		})
	}

	return "", &Error{Code: CodeMaxIterationsExceeded,
		Message: fmt.Sprintf("no final answer after %d iterations", d.cfg.MaxIterations)}
}

// finalAnswer resolves the answer text from a final turn: the final_answer
// field, a bare-string action_input, an "answer" key, or the thought.
func finalAnswer(r *reply) string {
	if r.FinalAnswer != "" {
		return r.FinalAnswer
	}
	if answer, ok := r.ActionInput.(string); ok && answer != "" {
		return answer
	}
	if m := r.inputMap(); m != nil {
		if answer, ok := m["answer"].(string); ok && answer != "" {
			return answer
		}
		if encoded, err := json.Marshal(m); err == nil && len(m) > 0 {
			return string(encoded)
		}
	}
	return r.Thought
}

// observation renders a tool outcome for the next model turn.
func observation(outcome reasoning.ToolOutcome) string {
	if !outcome.Success {
		return "tool call failed: " + outcome.Error
	}
	encoded, err := json.Marshal(outcome.Value)
	if err != nil {
		return fmt.Sprintf("%v", outcome.Value)
	}
	return string(encoded)
}

// publishFinal delivers a terminal event. After cancellation the consumer
// may have abandoned the queue, so the send must not block on a full one.
func publishFinal(ctx context.Context, q *event.Queue, e event.Event) {
	if ctx.Err() == nil {
		_ = q.Publish(ctx, e)
		return
	}
	q.TryPublish(e)
}

func (d *Driver) persist(ch *chain.Chain) {
	if d.repo == nil {
		return
	}
	// Persistence must survive caller cancellation.
	if err := d.repo.Save(context.Background(), ch); err != nil {
		slog.Error("failed to persist chain", "chain_id", ch.ID, "task_id", ch.TaskID, "error", err)
	}
}

// systemPrompt renders the instructions and the tool catalog. The llm tool
// itself is excluded; the model drives it implicitly.
func (d *Driver) systemPrompt(tools []tool.Definition) string {
	var b strings.Builder

	if d.cfg.SystemPrompt != "" {
		b.WriteString(d.cfg.SystemPrompt)
		b.WriteString("\n\n")
	}

	b.WriteString("You solve tasks step by step using the tools below.\n\n")
	b.WriteString("Available tools:\n")
	for _, def := range tools {
		if def.Type == tool.TypeLLM {
			continue
		}
		schema, _ := json.Marshal(map[string]interface{}{
			"name":        def.Name,
			"description": def.Description,
			"parameters":  def.JSONSchema(),
		})
		b.Write(schema)
		b.WriteByte('\n')
	}

	b.WriteString("\nRespond with exactly one JSON object per turn:\n")
	b.WriteString(`{"thought": "<your reasoning>", "action": "<tool name>", "action_input": {<tool arguments>}, "is_final": false}`)
	b.WriteString("\nWhen you have the answer, respond with:\n")
	b.WriteString(`{"thought": "<your reasoning>", "is_final": true, "final_answer": "<the answer>"}`)
	b.WriteString("\nNever emit anything outside the JSON object.")

	return b.String()
}
