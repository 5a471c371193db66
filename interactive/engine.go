// Package interactive implements the interactive RLM controller (C8,
// spec.md §4.8): a per-query iteration loop that calls a root model,
// parses emitted code, executes it through an interp.Host, and detects a
// final answer. Grounded on the teacher's graph.Engine bounded step loop
// (explicit, caller-driven iteration rather than a background goroutine)
// and on the iterate/parse/execute/check-final shape of
// other_examples/072c3c4b_jbeck018-recursive-llm-ts__go-rlm-rlm.go.go's
// Completion loop, re-expressed in the teacher's idiom: an explicit
// Config struct instead of loose parameters. The engine carries an
// emit.Emitter and hands it to spawned children, but Run itself emits no
// step-level events; the Observer type here is scoped narrowly to
// sub-call lifecycle (spec.md §4.10), not general tracing.
package interactive

import (
	"context"
	"fmt"

	"github.com/dshills/rlm-engine/emit"
	"github.com/dshills/rlm-engine/interp"
	"github.com/dshills/rlm-engine/model"
)

// Config bounds one interactive run (spec.md §4.8 "Per-query loop").
type Config struct {
	MaxIterations  int
	MaxLLMCalls    int
	MaxOutputChars int
	MaxDepth       int
	MaxErrors      int
}

// DefaultConfig mirrors the interactive tool surface defaults (spec.md
// §6.2 "rlm(...)").
func DefaultConfig() Config {
	return Config{
		MaxIterations:  15,
		MaxLLMCalls:    50,
		MaxOutputChars: 4000,
		MaxDepth:       1,
		MaxErrors:      3,
	}
}

// Interpreter is the subset of *interp.Host the controller depends on,
// narrowed to an interface so tests can substitute a fake child process
// (spec.md §9 "Global state": "reintroduce it as an injected store
// abstraction so tests can point at a temp directory" — applied here to
// the interpreter dependency rather than the store).
type Interpreter interface {
	Execute(code string) (interp.ExecuteResult, error)
}

// Engine is one controller instance: the root, or a child spawned by the
// sub-call router for a recursive rlm_query (spec.md §9 "Recursive
// controller": "an explicit Engine{parent?, sharedState, callTree, depth}
// shape"). Parent/child never hold back-pointers to each other; only the
// shared budget/call-tree state and depth counter are threaded through.
type Engine struct {
	cfg      Config
	model    model.ChatModel
	host     Interpreter
	shared   *SharedState
	depth    int
	observer Observer
	emitter  emit.Emitter
}

// NewRoot constructs the root controller for one interactive run.
func NewRoot(cfg Config, m model.ChatModel, host Interpreter, observer Observer, emitter emit.Emitter) *Engine {
	if observer == nil {
		observer = NoopObserver{}
	}
	return &Engine{
		cfg:      cfg,
		model:    m,
		host:     host,
		shared:   NewSharedState(cfg.MaxLLMCalls),
		depth:    0,
		observer: observer,
		emitter:  emitter,
	}
}

// SpawnChild builds a depth+1 controller that shares this engine's budget
// counter, call tree, and config, with its own model adapter and
// interpreter host (spec.md §4.10 "instantiates a child controller that
// shares the same context and budgets").
func (e *Engine) SpawnChild(m model.ChatModel, host Interpreter) *Engine {
	return &Engine{
		cfg:      e.cfg,
		model:    m,
		host:     host,
		shared:   e.shared,
		depth:    e.depth + 1,
		observer: e.observer,
		emitter:  e.emitter,
	}
}

// Depth returns this engine's recursion depth (0 for the root).
func (e *Engine) Depth() int { return e.depth }

// AtMaxDepth reports whether a further recursive spawn from this engine
// would exceed maxDepth (spec.md P10: "rlm_query at the boundary degrades
// to llm_query").
func (e *Engine) AtMaxDepth() bool { return e.depth >= e.cfg.MaxDepth }

// SharedState exposes the engine's shared budget/call-tree state so the
// sub-call router can reserve calls and spawn children from the same
// accounting.
func (e *Engine) SharedState() *SharedState { return e.shared }

// Config returns this engine's bounds.
func (e *Engine) Config() Config { return e.cfg }

// Run executes the per-query iteration loop (spec.md §4.8 "Per-query
// loop") and returns the final answer text, the recorded trajectory, the
// aggregated call tree (spec.md §3.5), and an error when the context is
// cancelled, a root-model or fallback call fails, or MaxErrors
// consecutive execution errors occur. Budget exhaustion does not end Run:
// the sub-call router answers an over-budget sub-call with an error
// string and the loop continues.
func (e *Engine) Run(ctx context.Context, query, contextText string) (string, []TrajectoryStep, CallTree, error) {
	var trajectory []TrajectoryStep
	consecutiveErrors := 0

	for iteration := 1; iteration <= e.cfg.MaxIterations; iteration++ {
		select {
		case <-ctx.Done():
			return "", trajectory, e.callTree(query, len(trajectory)), ctx.Err()
		default:
		}

		text, err := e.callModel(ctx, query, contextText, trajectory, iteration == 1)
		if err != nil {
			return "", trajectory, e.callTree(query, len(trajectory)), err
		}

		reasoning, code := ExtractCode(text)
		if code == "" {
			trajectory = append(trajectory, TrajectoryStep{
				Iteration: iteration,
				Reasoning: reasoning,
				Output:    "No code block found in response.",
			})
			continue
		}

		result, err := e.host.Execute(code)
		if err != nil {
			step := TrajectoryStep{
				Iteration: iteration,
				Reasoning: reasoning,
				Code:      code,
				Output:    "[stderr] " + err.Error(),
				IsError:   true,
			}
			trajectory = append(trajectory, step)
			consecutiveErrors++
			if consecutiveErrors >= e.cfg.MaxErrors {
				return "", trajectory, e.callTree(query, len(trajectory)), fmt.Errorf("interactive: %d consecutive errors, aborting", consecutiveErrors)
			}
			continue
		}

		if result.HasFinal {
			trajectory = append(trajectory, TrajectoryStep{
				Iteration: iteration,
				Reasoning: reasoning,
				Code:      code,
				Output:    result.Stdout,
			})
			return result.FinalAnswer, trajectory, e.callTree(query, len(trajectory)), nil
		}

		output := formatStepOutput(result, e.cfg.MaxOutputChars)
		trajectory = append(trajectory, TrajectoryStep{
			Iteration: iteration,
			Reasoning: reasoning,
			Code:      code,
			Output:    output,
			IsError:   result.HasError,
		})

		if result.HasError {
			consecutiveErrors++
			if consecutiveErrors >= e.cfg.MaxErrors {
				return "", trajectory, e.callTree(query, len(trajectory)), fmt.Errorf("interactive: %d consecutive errors, aborting", consecutiveErrors)
			}
		} else {
			consecutiveErrors = 0
		}
	}

	answer, err := e.runFallback(ctx, query, trajectory)
	if err != nil {
		return "", trajectory, e.callTree(query, len(trajectory)), err
	}
	return answer, trajectory, e.callTree(query, len(trajectory)), nil
}

// callTree builds this engine's current CallTree view: the shared sub-call
// log reduced against this engine's own root query and iteration count.
func (e *Engine) callTree(query string, iterations int) CallTree {
	return BuildCallTree(query, iterations, e.shared.SubCalls())
}

// callModel drives the controller's own per-iteration "ask the model for
// the next step" call. This does not reserve from shared: maxIterations
// already bounds how many times this loop runs, and maxLLMCalls bounds
// only Σ sub-llm-calls (spec.md P9) — the llm_query/rlm_query invocations
// the interpreter makes through subcall.Router, not the controller's own
// driving calls.
func (e *Engine) callModel(ctx context.Context, query, contextText string, trajectory []TrajectoryStep, firstIteration bool) (string, error) {
	prompt := buildIterationPrompt(query, contextText, trajectory, firstIteration)
	out, err := e.model.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: rootSystemPrompt},
		{Role: model.RoleUser, Content: prompt},
	})
	if err != nil {
		return "", fmt.Errorf("interactive: root model call failed: %w", err)
	}
	return out.Text, nil
}

// runFallback is the controller's own single summarization call after the
// iteration loop runs out; like callModel, it does not touch the shared
// sub-call budget (see callModel's comment).
func (e *Engine) runFallback(ctx context.Context, query string, trajectory []TrajectoryStep) (string, error) {
	prompt := buildFallbackPrompt(query, trajectory)
	out, err := e.model.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: rootSystemPrompt},
		{Role: model.RoleUser, Content: prompt},
	})
	if err != nil {
		return "", fmt.Errorf("interactive: fallback summarization failed: %w", err)
	}
	return out.Text, nil
}
