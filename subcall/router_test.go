package subcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dshills/rlm-engine/interactive"
	"github.com/dshills/rlm-engine/interp"
	"github.com/dshills/rlm-engine/model"
	"github.com/dshills/rlm-engine/model/mock"
)

type fakeRegistry struct {
	models map[string]model.ChatModel
	def    model.ChatModel
	err    error
}

func (f *fakeRegistry) Resolve(modelID string) (model.ChatModel, error) {
	if f.err != nil {
		return nil, f.err
	}
	if modelID == "" {
		return f.def, nil
	}
	if m, ok := f.models[modelID]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("unknown model %q", modelID)
}

type fakeInterpreter struct {
	result interp.ExecuteResult
}

func (f *fakeInterpreter) Execute(code string) (interp.ExecuteResult, error) {
	return f.result, nil
}

func newTestEngine(maxLLMCalls, maxDepth int) *interactive.Engine {
	cfg := interactive.DefaultConfig()
	cfg.MaxLLMCalls = maxLLMCalls
	cfg.MaxDepth = maxDepth
	return interactive.NewRoot(cfg, &mock.ChatModel{}, &fakeInterpreter{}, nil, nil)
}

func TestDoLLMQuerySucceeds(t *testing.T) {
	engine := newTestEngine(5, 1)
	def := &mock.ChatModel{Responses: []model.ChatOut{{Text: "mocked answer"}}}
	registry := &fakeRegistry{def: def}
	router := NewRouter(engine, registry, nil, nil, "ctx")

	resp := router.doLLMQuery(context.Background(), subCallRequest{Prompt: "hi"})
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}
	if resp.Result != "mocked answer" {
		t.Errorf("expected mocked answer, got %q", resp.Result)
	}
	if engine.SharedState().Used() != 1 {
		t.Errorf("expected shared budget to record 1 used call, got %d", engine.SharedState().Used())
	}
	tree := engine.SharedState().SubCalls()
	if len(tree) != 1 || tree[0].Status != interactive.SubCallStatusCompleted {
		t.Errorf("expected one completed call recorded, got %+v", tree)
	}
}

func TestDoLLMQueryRejectsWhenBudgetExhausted(t *testing.T) {
	engine := newTestEngine(0, 1)
	registry := &fakeRegistry{def: &mock.ChatModel{}}
	router := NewRouter(engine, registry, nil, nil, "ctx")

	resp := router.doLLMQuery(context.Background(), subCallRequest{Prompt: "hi"})
	if resp.Error == "" {
		t.Fatal("expected budget exhausted error")
	}
	tree := engine.SharedState().SubCalls()
	if len(tree) != 1 || tree[0].Status != interactive.SubCallStatusFailed {
		t.Errorf("expected one failed call recorded, got %+v", tree)
	}
}

func TestDoLLMQueryPropagatesModelError(t *testing.T) {
	engine := newTestEngine(5, 1)
	registry := &fakeRegistry{err: errors.New("no such model")}
	router := NewRouter(engine, registry, nil, nil, "ctx")

	resp := router.doLLMQuery(context.Background(), subCallRequest{Prompt: "hi", Model: "bogus"})
	if resp.Error != "no such model" {
		t.Errorf("expected model resolution error, got %q", resp.Error)
	}
}

func TestHandleRLMQueryDegradesAtMaxDepth(t *testing.T) {
	engine := newTestEngine(5, 0) // depth 0 >= maxDepth 0: already at the boundary
	def := &mock.ChatModel{Responses: []model.ChatOut{{Text: "degraded answer"}}}
	registry := &fakeRegistry{def: def}

	spawnCalled := false
	spawnHost := func(ctx context.Context) (interactive.Interpreter, func(), error) {
		spawnCalled = true
		return nil, nil, fmt.Errorf("should not be called")
	}
	router := NewRouter(engine, registry, spawnHost, nil, "ctx")

	req := httptest.NewRequest("POST", "/rlm_query", strings.NewReader(`{"prompt":"hi"}`))
	rec := httptest.NewRecorder()
	router.handleRLMQuery(rec, req)

	var resp subCallResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}
	if resp.Result != "degraded answer" {
		t.Errorf("expected degraded llm_query answer, got %q", resp.Result)
	}
	if spawnCalled {
		t.Error("expected no child interpreter to be spawned at max depth")
	}
}

func TestDoRLMQuerySpawnsChildAndSharesBudget(t *testing.T) {
	engine := newTestEngine(5, 1) // depth 0 < maxDepth 1: recursion allowed
	childModel := &mock.ChatModel{Responses: []model.ChatOut{
		{Text: "```repl\nFINAL(\"child-answer\")\n```"},
	}}
	registry := &fakeRegistry{def: childModel}

	cleanupCalled := false
	spawnHost := func(ctx context.Context) (interactive.Interpreter, func(), error) {
		fi := &fakeInterpreter{result: interp.ExecuteResult{FinalAnswer: "child-answer", HasFinal: true}}
		return fi, func() { cleanupCalled = true }, nil
	}
	router := NewRouter(engine, registry, spawnHost, nil, "full context text")

	req := httptest.NewRequest("POST", "/rlm_query", strings.NewReader(`{"prompt":"what is x?"}`))
	rec := httptest.NewRecorder()
	router.handleRLMQuery(rec, req)

	var resp subCallResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}
	if resp.Result != "child-answer" {
		t.Errorf("expected child-answer, got %q", resp.Result)
	}
	if !cleanupCalled {
		t.Error("expected spawned interpreter cleanup to run")
	}
	if engine.SharedState().Used() != 1 {
		t.Errorf("expected the rlm_query call itself to consume one unit of the shared budget, got %d", engine.SharedState().Used())
	}
}
