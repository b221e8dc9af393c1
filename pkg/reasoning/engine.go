// Package reasoning exposes the primitives a reasoning strategy composes:
// recording thought and synthesis steps, dispatching tool calls through the
// executor, and streaming every appended step to the task's event queue.
package reasoning

import (
	"context"
	"fmt"

	"github.com/omniforge-ai/omniforge/pkg/chain"
	"github.com/omniforge-ai/omniforge/pkg/event"
	"github.com/omniforge-ai/omniforge/pkg/executor"
	"github.com/omniforge-ai/omniforge/pkg/llms"
	"github.com/omniforge-ai/omniforge/pkg/tool"
)

// Engine owns one chain for the duration of one task execution. It is not
// safe for concurrent use; a task runs on a single worker goroutine.
type Engine struct {
	chain   *chain.Chain
	exec    *executor.Executor
	queue   *event.Queue
	base    tool.CallContext
	allowed []string
}

// NewEngine creates an engine recording into ch and streaming into queue.
// base carries the task identity and budgets applied to every tool call.
func NewEngine(ch *chain.Chain, exec *executor.Executor, queue *event.Queue, base tool.CallContext) *Engine {
	base.TaskID = ch.TaskID
	base.AgentID = ch.AgentID
	base.TenantID = ch.TenantID
	base.ChainID = ch.ID
	return &Engine{chain: ch, exec: exec, queue: queue, base: base}
}

// RestrictTools limits CallTool to the named tools. Internal LLM turns are
// unaffected. A nil or empty list lifts the restriction.
func (e *Engine) RestrictTools(names []string) {
	e.allowed = names
}

// Chain returns the chain under construction.
func (e *Engine) Chain() *chain.Chain {
	return e.chain
}

// AvailableTools returns the schemas of every registered tool, in
// registration order, for prompt rendering.
func (e *Engine) AvailableTools() []tool.Definition {
	return e.exec.Registry().Definitions()
}

// AddThinking records a thinking step and streams it.
func (e *Engine) AddThinking(ctx context.Context, content string, confidence float64) *chain.Step {
	step := e.chain.Append(chain.StepThinking, chain.ThinkingPayload(content, confidence))
	e.publish(ctx, step)
	return step
}

// AddSynthesis records the final synthesis step referencing its sources.
func (e *Engine) AddSynthesis(ctx context.Context, content string, sourceStepIDs []string) *chain.Step {
	step := e.chain.Append(chain.StepSynthesis, chain.SynthesisPayload(content, sourceStepIDs))
	e.publish(ctx, step)
	return step
}

// ToolOutcome is the engine-level view of one tool invocation: the recorded
// step pair plus the unwrapped result.
type ToolOutcome struct {
	CallStepID   string
	ResultStepID string
	Success      bool
	Value        interface{}
	Error        string
	Result       tool.Result
}

// CallTool dispatches a tool call through the executor and streams the
// recorded steps. Failures come back in the outcome, never as a panic or a
// lost step.
func (e *Engine) CallTool(ctx context.Context, name string, args map[string]interface{}) ToolOutcome {
	return e.dispatch(ctx, name, args, executor.WithAllowedTools(e.allowed))
}

func (e *Engine) dispatch(ctx context.Context, name string, args map[string]interface{}, opts ...executor.Option) ToolOutcome {
	before := len(e.chain.Steps)
	result := e.exec.Execute(ctx, name, args, e.base, e.chain, opts...)

	appended := e.chain.Steps[before:]
	for _, step := range appended {
		e.publish(ctx, step)
	}

	outcome := ToolOutcome{
		Success: result.Success,
		Value:   result.Output,
		Error:   result.Error,
		Result:  result,
	}
	for _, step := range appended {
		switch step.Type {
		case chain.StepToolCall:
			outcome.CallStepID = step.ID
		case chain.StepToolResult:
			outcome.ResultStepID = step.ID
		}
	}
	return outcome
}

// CallLLM invokes the builtin llm tool and returns the reply text alongside
// the full outcome. Successful reasoning turns are gated and accounted like
// any tool call but leave no chain steps; denials and failures are recorded.
func (e *Engine) CallLLM(ctx context.Context, model string, messages []llms.Message, maxTokens int, temperature float64, jsonMode bool) (string, ToolOutcome) {
	raw := make([]interface{}, len(messages))
	for i, m := range messages {
		raw[i] = map[string]interface{}{"role": m.Role, "content": m.Content}
	}
	args := map[string]interface{}{
		"model":    model,
		"messages": raw,
	}
	if maxTokens > 0 {
		args["max_tokens"] = maxTokens
	}
	if temperature > 0 {
		args["temperature"] = temperature
	}
	if jsonMode {
		args["json_mode"] = true
	}

	outcome := e.dispatch(ctx, llms.ToolName, args, executor.RecordFailuresOnly())
	if !outcome.Success {
		return "", outcome
	}

	output, ok := outcome.Value.(map[string]interface{})
	if !ok {
		outcome.Success = false
		outcome.Error = fmt.Sprintf("llm tool returned unexpected output type %T", outcome.Value)
		return "", outcome
	}
	text, _ := output["text"].(string)
	return text, outcome
}

func (e *Engine) publish(ctx context.Context, step *chain.Step) {
	if e.queue == nil {
		return
	}
	_ = e.queue.Publish(ctx, event.ReasoningStep(e.chain.TaskID, e.chain.ID, step))
}
