// Package subcall implements the loopback HTTP sub-call router (C10,
// spec.md §4.10): the /llm_query and /rlm_query endpoints the interpreter
// host's Python child calls into for sub-model completions and recursive
// RLM spawning. Grounded on the teacher's graph/tool/http.go (request
// shape, error-as-value return style) for the outbound completion calls,
// and on the teacher's atomic-counter/mutex-protected shared-state
// discipline from graph/engine.go's concurrent merge path for budget and
// call-tree bookkeeping — reused directly as interactive.SharedState
// rather than duplicated here.
package subcall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dshills/rlm-engine/interactive"
	"github.com/dshills/rlm-engine/model"
)

// ModelRegistry resolves a requested model id — or the controller's
// default when modelID is empty — to a ChatModel (spec.md §4.10
// "resolves the model (requested id, else the controller's default),
// obtains an API key from the external registry").
type ModelRegistry interface {
	Resolve(modelID string) (model.ChatModel, error)
}

// InterpreterFactory provisions a fresh interpreter host for a spawned
// child controller and returns a cleanup func to release it (spec.md §9
// "Process lifecycle": scoped acquisition with guaranteed release on
// every exit path).
type InterpreterFactory func(ctx context.Context) (interactive.Interpreter, func(), error)

// Router serves /llm_query and /rlm_query for one interactive engine
// tree rooted at engine.
type Router struct {
	engine      *interactive.Engine
	registry    ModelRegistry
	spawnHost   InterpreterFactory
	observer    interactive.Observer
	contextText string
	limiter     *rate.Limiter
}

// defaultRPS bounds the loopback endpoint's request rate; the batched
// helpers in the interpreter fan out up to 10 (llm) / 5 (rlm) concurrent
// calls (spec.md §5), so the limiter ceiling must clear that comfortably.
const defaultRPS = 20

// NewRouter constructs a Router for the given root engine. contextText is
// the same input handed to the root's interpreter host, re-written to
// each spawned child's own host so /rlm_query children see identical
// context (spec.md §4.10 "shares the same context and budgets").
func NewRouter(engine *interactive.Engine, registry ModelRegistry, spawnHost InterpreterFactory, observer interactive.Observer, contextText string) *Router {
	if observer == nil {
		observer = interactive.NoopObserver{}
	}
	return &Router{
		engine:      engine,
		registry:    registry,
		spawnHost:   spawnHost,
		observer:    observer,
		contextText: contextText,
		limiter:     rate.NewLimiter(rate.Limit(defaultRPS), defaultRPS),
	}
}

// Handler returns the mux serving both endpoints, ready to be wrapped by
// an http.Server listening on an ephemeral loopback port.
func (r *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/llm_query", r.handleLLMQuery)
	mux.HandleFunc("/rlm_query", r.handleRLMQuery)
	return mux
}

type subCallRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

type subCallResponse struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func decodeRequest(req *http.Request) (subCallRequest, error) {
	defer req.Body.Close()
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return subCallRequest{}, fmt.Errorf("reading request body: %w", err)
	}
	var body subCallRequest
	if err := json.Unmarshal(data, &body); err != nil {
		return subCallRequest{}, fmt.Errorf("decoding request body: %w", err)
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, resp subCallResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (r *Router) handleLLMQuery(w http.ResponseWriter, req *http.Request) {
	body, err := decodeRequest(req)
	if err != nil {
		writeJSON(w, subCallResponse{Error: err.Error()})
		return
	}
	writeJSON(w, r.doLLMQuery(req.Context(), body))
}

func (r *Router) handleRLMQuery(w http.ResponseWriter, req *http.Request) {
	body, err := decodeRequest(req)
	if err != nil {
		writeJSON(w, subCallResponse{Error: err.Error()})
		return
	}
	if r.engine.AtMaxDepth() {
		writeJSON(w, r.doLLMQuery(req.Context(), body))
		return
	}
	writeJSON(w, r.doRLMQuery(req.Context(), body))
}

// doLLMQuery performs a single sub-model completion, reserving one unit
// of the shared LLM call budget (spec.md §4.10 "/llm_query").
func (r *Router) doLLMQuery(ctx context.Context, body subCallRequest) subCallResponse {
	call := r.startCall(interactive.SubCallTypeLLM, body, r.engine.Depth())

	if !r.limiter.Allow() {
		return r.fail(call, fmt.Errorf("sub-call rate limit exceeded"))
	}
	if !r.engine.SharedState().TryReserve() {
		return r.fail(call, fmt.Errorf("llm call budget exhausted"))
	}

	m, err := r.resolveModel(body.Model)
	if err != nil {
		return r.fail(call, err)
	}

	out, err := m.Chat(ctx, []model.Message{{Role: model.RoleUser, Content: body.Prompt}})
	if err != nil {
		return r.fail(call, err)
	}

	return r.succeed(call, out.Text)
}

// doRLMQuery spawns a depth+1 child controller sharing this engine's
// budget and call tree, and runs it to completion over a fresh
// interpreter host carrying the same context (spec.md §4.10
// "/rlm_query"). The rlm_query invocation itself reserves one unit of the
// shared budget, exactly like doLLMQuery; any further sub-calls the child
// makes reserve their own units through this same shared counter when
// its own router handlers run (spec.md P9 "Σ sub-llm-calls").
func (r *Router) doRLMQuery(ctx context.Context, body subCallRequest) subCallResponse {
	call := r.startCall(interactive.SubCallTypeRLM, body, r.engine.Depth()+1)

	if !r.limiter.Allow() {
		return r.fail(call, fmt.Errorf("sub-call rate limit exceeded"))
	}
	if !r.engine.SharedState().TryReserve() {
		return r.fail(call, fmt.Errorf("llm call budget exhausted"))
	}

	m, err := r.resolveModel(body.Model)
	if err != nil {
		return r.fail(call, err)
	}

	host, cleanup, err := r.spawnHost(ctx)
	if err != nil {
		return r.fail(call, err)
	}
	defer cleanup()

	child := r.engine.SpawnChild(m, host)
	answer, _, _, err := child.Run(ctx, body.Prompt, r.contextText)
	if err != nil {
		return r.fail(call, err)
	}

	return r.succeed(call, answer)
}

func (r *Router) resolveModel(modelID string) (model.ChatModel, error) {
	return r.registry.Resolve(modelID)
}

func (r *Router) startCall(callType string, body subCallRequest, depth int) interactive.SubCall {
	call := interactive.SubCall{
		ID:        uuid.NewString(),
		Type:      callType,
		Prompt:    interactive.TruncatePrompt(body.Prompt),
		Model:     body.Model,
		Status:    interactive.SubCallStatusRunning,
		StartTime: time.Now(),
		Depth:     depth,
	}
	r.observer.OnSubCallStart(call)
	return call
}

func (r *Router) succeed(call interactive.SubCall, result string) subCallResponse {
	call.Status = interactive.SubCallStatusCompleted
	call.Result = result
	call.Duration = time.Since(call.StartTime)
	r.finish(call)
	return subCallResponse{Result: result}
}

func (r *Router) fail(call interactive.SubCall, err error) subCallResponse {
	call.Status = interactive.SubCallStatusFailed
	call.Error = err.Error()
	call.Duration = time.Since(call.StartTime)
	r.finish(call)
	return subCallResponse{Error: err.Error()}
}

func (r *Router) finish(call interactive.SubCall) {
	r.engine.SharedState().RecordCall(call)
	r.observer.OnSubCallComplete(call)
}
