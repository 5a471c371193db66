package rlmtool

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/dshills/rlm-engine/interactive"
	"github.com/dshills/rlm-engine/interp"
	"github.com/dshills/rlm-engine/model"
	"github.com/dshills/rlm-engine/subcall"
)

// QueryParams configures one top-level interactive rlm(...) invocation
// (spec.md §6.2 "rlm(query, context, model=None, max_iterations=15)").
type QueryParams struct {
	Query           string
	Context         string
	Model           string
	MaxIterations   int
	MaxLLMCalls     int
	MaxDepth        int
	InterpreterPath string // defaults to "python3"
}

func (p *QueryParams) applyDefaults() {
	cfg := interactive.DefaultConfig()
	if p.MaxIterations <= 0 {
		p.MaxIterations = cfg.MaxIterations
	}
	if p.MaxLLMCalls <= 0 {
		p.MaxLLMCalls = cfg.MaxLLMCalls
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = cfg.MaxDepth
	}
	if p.InterpreterPath == "" {
		p.InterpreterPath = "python3"
	}
}

// Query runs one interactive RLM session to completion: it stands up a
// loopback HTTP sub-call router, spawns the root interpreter host against
// it, drives the controller loop, and tears everything down before
// returning (spec.md §4.8, §4.10, §9 "Process lifecycle" — scoped
// acquisition with guaranteed release on every exit path).
func (t *Toolset) Query(ctx context.Context, registry subcall.ModelRegistry, observer interactive.Observer, p QueryParams) (string, []interactive.TrajectoryStep, interactive.CallTree, error) {
	p.applyDefaults()

	rootModel, err := registry.Resolve(p.Model)
	if err != nil {
		return "", nil, interactive.CallTree{}, fmt.Errorf("rlmtool: resolving root model: %w", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, interactive.CallTree{}, fmt.Errorf("rlmtool: opening loopback listener: %w", err)
	}
	baseURL := "http://" + listener.Addr().String()

	cfg := interactive.DefaultConfig()
	cfg.MaxIterations = p.MaxIterations
	cfg.MaxLLMCalls = p.MaxLLMCalls
	cfg.MaxDepth = p.MaxDepth

	host, err := interp.Spawn(ctx, p.InterpreterPath, baseURL, p.Context)
	if err != nil {
		_ = listener.Close()
		return "", nil, interactive.CallTree{}, fmt.Errorf("rlmtool: spawning root interpreter: %w", err)
	}
	defer host.Close()

	engine := interactive.NewRoot(cfg, rootModel, host, observer, t.emitter)

	spawnHost := func(spawnCtx context.Context) (interactive.Interpreter, func(), error) {
		child, err := interp.Spawn(spawnCtx, p.InterpreterPath, baseURL, p.Context)
		if err != nil {
			return nil, nil, fmt.Errorf("rlmtool: spawning child interpreter: %w", err)
		}
		return child, func() { child.Close() }, nil
	}

	router := subcall.NewRouter(engine, registry, spawnHost, observer, p.Context)
	server := &http.Server{Handler: router.Handler()}
	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- server.Serve(listener) }()
	defer func() {
		_ = server.Close()
		<-serveErrCh
	}()

	return engine.Run(ctx, p.Query, p.Context)
}

// defaultQueryModel wraps an already-resolved model.ChatModel as a
// ModelRegistry that returns it for every model id, for callers that don't
// need the full registry machinery (the package tests use it).
func defaultQueryModel(m model.ChatModel) subcall.ModelRegistry {
	return staticRegistry{m}
}

type staticRegistry struct{ m model.ChatModel }

func (s staticRegistry) Resolve(modelID string) (model.ChatModel, error) {
	return s.m, nil
}
