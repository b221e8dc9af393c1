// Package executor is the single gate through which every tool invocation
// passes. It resolves the tool, validates governance policy and budgets,
// consumes rate-limit quota, runs the tool under its timeout, and records a
// tool_call/tool_result pair on the reasoning chain.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/omniforge-ai/omniforge/pkg/chain"
	"github.com/omniforge-ai/omniforge/pkg/governance"
	"github.com/omniforge-ai/omniforge/pkg/observability"
	"github.com/omniforge-ai/omniforge/pkg/ratelimit"
	"github.com/omniforge-ai/omniforge/pkg/tool"
)

// Executor gates and records tool invocations.
type Executor struct {
	registry *tool.Registry
	limiter  *ratelimit.Limiter
	governor *governance.Governor
	costs    *governance.CostTable
}

// New creates an executor over the given registry and enforcement layers.
// limiter and governor may be nil in tests to disable that layer.
func New(registry *tool.Registry, limiter *ratelimit.Limiter, governor *governance.Governor, costs *governance.CostTable) *Executor {
	if costs == nil {
		costs = governance.NewCostTable()
	}
	return &Executor{
		registry: registry,
		limiter:  limiter,
		governor: governor,
		costs:    costs,
	}
}

// Registry exposes the underlying tool registry.
func (e *Executor) Registry() *tool.Registry {
	return e.registry
}

type execOptions struct {
	recordFailuresOnly bool
	allowedTools       []string
}

// Option adjusts how one invocation is gated and recorded.
type Option func(*execOptions)

// RecordFailuresOnly suppresses the chain steps for successful invocations.
// Failures are always recorded, so denials and errors stay inspectable.
func RecordFailuresOnly() Option {
	return func(o *execOptions) { o.recordFailuresOnly = true }
}

// WithAllowedTools restricts the invocation to the named tools. An empty
// list means unrestricted.
func WithAllowedTools(names []string) Option {
	return func(o *execOptions) { o.allowedTools = names }
}

// Execute runs the named tool and records the invocation on ch. It never
// returns an error: every denial, timeout, and tool failure becomes a failed
// Result, recorded as a tool_result step so the chain stays complete.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]interface{}, call tool.CallContext, ch *chain.Chain, opts ...Option) tool.Result {
	var options execOptions
	for _, opt := range opts {
		opt(&options)
	}

	start := time.Now()
	if call.CorrelationID == "" {
		call.CorrelationID = uuid.New().String()
	}

	// Resolve before recording so the call step carries the tool type; a
	// missing tool still gets its call/result pair.
	var def tool.Definition
	t, lookupErr := e.registry.Get(name)
	if lookupErr == nil {
		def = t.Definition()
	}

	// The call goes on the record before any gate runs, so a long invocation
	// is visible on the chain while it is still in flight.
	var callStep *chain.Step
	if !options.recordFailuresOnly {
		callStep = ch.Append(chain.StepToolCall, chain.ToolCallPayload(call.CorrelationID, name, def.Type, args))
	}

	result := func() tool.Result {
		if len(options.allowedTools) > 0 && !contains(options.allowedTools, name) {
			return tool.Fail(fmt.Sprintf("tool '%s' is not allowed", name), time.Since(start))
		}
		if lookupErr != nil {
			return tool.Fail(lookupErr.Error(), time.Since(start))
		}

		model, estTokens, estCost := e.estimate(def, args, call)

		if def.Type == tool.TypeLLM && e.governor != nil {
			if err := e.governor.Validate(call.TenantID, model, estCost); err != nil {
				return tool.Fail(err.Error(), time.Since(start))
			}
		}
		if call.MaxCostUSD > 0 && estCost > call.MaxCostUSD {
			return tool.Fail(fmt.Sprintf("estimated cost $%.6f exceeds call budget $%.6f", estCost, call.MaxCostUSD), time.Since(start))
		}
		if e.limiter != nil {
			decision := e.limiter.CheckAndConsume(call.TenantID, def.Type.Category(), estTokens, estCost)
			if !decision.Allowed {
				return tool.Fail(decision.Reason, time.Since(start))
			}
		}

		result := e.invoke(ctx, t, def, args)
		if result.DurationMS == 0 {
			result.DurationMS = time.Since(start).Milliseconds()
		}
		e.account(&result, def, model)
		return result
	}()

	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		var execErr error
		if !result.Success {
			execErr = fmt.Errorf("%s", result.Error)
		}
		metrics.RecordToolExecution(ctx, name, time.Since(start), execErr)
	}

	if options.recordFailuresOnly {
		if result.Success {
			return result
		}
		// Deferred mode records the pair only now that the call failed.
		callStep = ch.Append(chain.StepToolCall, chain.ToolCallPayload(call.CorrelationID, name, def.Type, args))
	}
	ch.Append(chain.StepToolResult, chain.ToolResultPayload(call.CorrelationID, result),
		chain.WithParent(callStep.ID),
		chain.WithUsage(result.TokensUsed, result.Cost))
	return result
}

// invoke runs the tool under its effective timeout. A tool that outlives the
// timeout is abandoned; its eventual result is discarded.
func (e *Executor) invoke(ctx context.Context, t tool.Tool, def tool.Definition, args map[string]interface{}) tool.Result {
	ctx, cancel := context.WithTimeout(ctx, def.EffectiveTimeout())
	defer cancel()

	start := time.Now()
	type outcome struct {
		result tool.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := t.Execute(ctx, args)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return tool.Fail(out.err.Error(), time.Since(start))
		}
		return out.result
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return tool.Fail(fmt.Sprintf("tool '%s' timed out after %s", def.Name, def.EffectiveTimeout()), time.Since(start))
		}
		return tool.Fail(ctx.Err().Error(), time.Since(start))
	}
}

// estimate computes the pre-call token and cost estimate. Only llm tools
// carry a usage estimate; other tools consume call quota alone.
func (e *Executor) estimate(def tool.Definition, args map[string]interface{}, call tool.CallContext) (model string, tokens int, cost float64) {
	if def.Type != tool.TypeLLM {
		return "", 0, 0
	}

	model, _ = args["model"].(string)
	maxTokens := call.MaxTokens
	if v, ok := args["max_tokens"]; ok {
		maxTokens = asInt(v)
	}

	messages := extractMessages(args)
	for _, m := range messages {
		tokens += e.costs.EstimateTokens(model, m)
	}
	cost = e.costs.EstimateRequest(model, messages, maxTokens)
	return model, tokens, cost
}

// account fills in post-call cost from reported token usage when the tool
// did not price the call itself.
func (e *Executor) account(result *tool.Result, def tool.Definition, model string) {
	if def.Type != tool.TypeLLM || !result.Success || result.Cost > 0 {
		return
	}
	output, ok := result.Output.(map[string]interface{})
	if !ok {
		return
	}
	inputTokens := asInt(output["input_tokens"])
	outputTokens := asInt(output["output_tokens"])
	if inputTokens == 0 && outputTokens == 0 {
		return
	}
	if m, ok := output["model"].(string); ok && m != "" {
		model = m
	}
	result.Cost = e.costs.ActualCost(model, inputTokens, outputTokens)
	if result.TokensUsed == 0 {
		result.TokensUsed = inputTokens + outputTokens
	}
}

// extractMessages pulls prompt text out of llm tool arguments for token
// estimation.
func extractMessages(args map[string]interface{}) []string {
	var out []string
	if prompt, ok := args["prompt"].(string); ok && prompt != "" {
		out = append(out, prompt)
	}
	if raw, ok := args["messages"].([]interface{}); ok {
		for _, m := range raw {
			if msg, ok := m.(map[string]interface{}); ok {
				if content, ok := msg["content"].(string); ok {
					out = append(out, content)
				}
			}
		}
	}
	return out
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
