// Package scheduler implements the recursive scheduler (C6, spec.md §4.6):
// selection, decision, leaf execution, split materialization, aggregation,
// and run-state refresh, driven by explicit Step calls that each process up
// to maxNodes nodes one at a time, with no background goroutine (spec.md
// §5 "single-threaded cooperative"). The step/runUntil
// loop shape is adapted from the teacher's graph.Engine's bounded step
// cadence, generalized from a typed-state reducer walk to a queued-node
// tree walk.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dshills/rlm-engine/decision"
	"github.com/dshills/rlm-engine/emit"
	"github.com/dshills/rlm-engine/leaf"
	"github.com/dshills/rlm-engine/run"
	"github.com/dshills/rlm-engine/scope"
	"github.com/dshills/rlm-engine/split"
)

// ErrInvalidTransition is returned by Cancel/Resume when the run is not in
// a state that allows the requested transition (spec.md §7).
var ErrInvalidTransition = errors.New("scheduler: invalid lifecycle transition")

// scopeWalkCap bounds the file enumeration performed to compute decision
// metrics; it is independent of the leaf executor's own 200-file sample.
const scopeWalkCap = 1_000_000

// Scheduler drives one run directory's node lifecycle.
type Scheduler struct {
	store   *run.Store
	emitter emit.Emitter
}

// New returns a Scheduler over store. A nil emitter defaults to a no-op.
func New(store *run.Store, emitter emit.Emitter) *Scheduler {
	if emitter == nil {
		emitter = emit.NullEmitter{}
	}
	return &Scheduler{store: store, emitter: emitter}
}

// StartRunParams configures a new run (spec.md §6.2 repo_rlm_start).
type StartRunParams struct {
	RunID      string
	Objective  string
	Mode       string
	ScopePaths []string
	Config     run.Config
	Now        time.Time
}

// ApplyDefaults fills zero-valued config fields with the documented
// defaults (spec.md §6.2).
func (p *StartRunParams) ApplyDefaults() {
	if p.Mode == "" {
		p.Mode = run.ModeGeneric
	}
	if p.Config.MaxDepth == 0 {
		p.Config.MaxDepth = 4
	}
	if p.Config.MaxLLMCalls == 0 {
		p.Config.MaxLLMCalls = 300
	}
	if p.Config.MaxTokens == 0 {
		p.Config.MaxTokens = 500_000
	}
	if p.Config.MaxWallClockMs == 0 {
		p.Config.MaxWallClockMs = 1_800_000
	}
	if p.Config.Scheduler == "" {
		p.Config.Scheduler = run.SchedulerBFS
	}
}

// StartRun creates the root node and persists the initial Run snapshot.
func (s *Scheduler) StartRun(p StartRunParams) (run.Run, error) {
	p.ApplyDefaults()
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	deadline := now.Add(time.Duration(p.Config.MaxWallClockMs) * time.Millisecond).UnixMilli()

	rootID := p.RunID + ":root"
	root := run.Node{
		RunID:     p.RunID,
		NodeID:    rootID,
		Depth:     0,
		ScopeType: run.ScopeRepo,
		ScopeRef:  run.ScopeRef{Paths: p.ScopePaths},
		Objective: p.Objective,
		Status:    run.NodeStatusQueued,
		Decision:  run.DecisionUndecided,
		Budgets: run.Budgets{
			MaxDepth:          p.Config.MaxDepth,
			RemainingLLMCalls: p.Config.MaxLLMCalls,
			RemainingTokens:   p.Config.MaxTokens,
			DeadlineEpochMs:   deadline,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	r := run.Run{
		RunID:      p.RunID,
		Objective:  p.Objective,
		Mode:       p.Mode,
		Status:     run.RunStatusRunning,
		RootNodeID: rootID,
		Config:     p.Config,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.SetRun(r); err != nil {
		return run.Run{}, err
	}
	if err := s.store.AppendNode(root); err != nil {
		return run.Run{}, err
	}
	s.emit(p.RunID, rootID, run.EventNodeEnqueued, nil)
	return r, nil
}

// StepResult reports what one Step call did (spec.md §6.2).
type StepResult struct {
	Run             run.Run
	ProcessedNodes  int
	AggregatedNodes int
	Notes           []string
}

func (s *Scheduler) emit(runID, nodeID, msg string, meta map[string]interface{}) {
	s.emitter.Emit(emit.Event{RunID: runID, NodeID: nodeID, Msg: msg, Meta: meta})
	_ = s.store.AppendQueueEvent(run.QueueEvent{RunID: runID, Event: msg, NodeID: nodeID, Timestamp: time.Now(), Details: meta})
}

// Step processes up to maxNodes queued nodes (spec.md §4.6.2).
func (s *Scheduler) Step(maxNodes int) (StepResult, error) {
	var result StepResult
	r, err := s.store.GetRun()
	if err != nil {
		return result, err
	}

	for i := 0; i < maxNodes; i++ {
		aggregated, err := s.aggregatePass(r)
		if err != nil {
			return result, err
		}
		result.AggregatedNodes += aggregated
		for range make([]struct{}, aggregated) {
			result.Notes = append(result.Notes, "aggregated a split parent")
		}

		nodes, err := s.store.LatestNodes()
		if err != nil {
			return result, err
		}
		next := selectNext(nodes, r.Config.Scheduler)
		if next == nil {
			break
		}
		if err := s.processNode(r, *next); err != nil {
			return result, err
		}
		result.ProcessedNodes++
		result.Notes = append(result.Notes, fmt.Sprintf("processed node %s", next.NodeID))
	}

	// Trailing aggregation pass.
	aggregated, err := s.aggregatePass(r)
	if err != nil {
		return result, err
	}
	result.AggregatedNodes += aggregated

	r, err = s.refreshRunState(r)
	if err != nil {
		return result, err
	}
	result.Run = r
	return result, nil
}

// RunUntil calls Step repeatedly until the run terminalizes or a step is
// idle (processes zero nodes and aggregates zero parents), per
// spec.md §4.6.4.
func (s *Scheduler) RunUntil(maxNodes int) (StepResult, error) {
	var total StepResult
	for i := 0; i < maxNodes; i++ {
		res, err := s.Step(1)
		if err != nil {
			return total, err
		}
		total.ProcessedNodes += res.ProcessedNodes
		total.AggregatedNodes += res.AggregatedNodes
		total.Notes = append(total.Notes, res.Notes...)
		total.Run = res.Run
		if isTerminalStatus(res.Run.Status) {
			break
		}
		if res.ProcessedNodes == 0 && res.AggregatedNodes == 0 {
			break
		}
	}
	return total, nil
}

func isTerminalStatus(status string) bool {
	switch status {
	case run.RunStatusCompleted, run.RunStatusFailed, run.RunStatusCancelled:
		return true
	default:
		return false
	}
}

// selectNext picks the next queued node per the selection policy
// (spec.md §4.6.1).
func selectNext(nodes map[string]run.Node, schedulerMode string) *run.Node {
	var queued []run.Node
	for _, n := range nodes {
		if n.Status == run.NodeStatusQueued {
			queued = append(queued, n)
		}
	}
	if len(queued) == 0 {
		return nil
	}
	sort.Slice(queued, func(i, j int) bool {
		a, b := queued[i], queued[j]
		if schedulerMode == run.SchedulerDFS {
			if a.Depth != b.Depth {
				return a.Depth > b.Depth // maximum depth preferred
			}
		} else {
			if a.Depth != b.Depth {
				return a.Depth < b.Depth // minimum depth preferred (bfs, hybrid)
			}
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return &queued[0]
}

func (s *Scheduler) processNode(r run.Run, node run.Node) error {
	now := time.Now()
	node.Status = run.NodeStatusRunning
	node.UpdatedAt = now
	if err := s.store.AppendNode(node); err != nil {
		return err
	}
	s.emit(r.RunID, node.NodeID, run.EventNodeDequeued, nil)
	s.emit(r.RunID, node.NodeID, run.EventNodeStarted, nil)

	metrics, err := scope.Walk(node.ScopeRef.Paths, scopeWalkCap)
	if err != nil {
		return s.failNode(r, node, "scope_walk_error", err.Error())
	}

	outcome := decision.Decide(r.Mode, node, decision.ScopeMetrics{FileCount: metrics.FileCount, TotalBytes: metrics.TotalBytes}, now.UnixMilli())
	node.Decision = outcome.Decision
	node.DecisionReason = outcome.Reason
	node.Metrics = &run.NodeMetrics{FileCount: metrics.FileCount, TotalBytes: metrics.TotalBytes}

	if outcome.Decision == run.DecisionSplit {
		return s.handleSplit(r, node)
	}
	return s.handleLeaf(r, node)
}

func (s *Scheduler) handleSplit(r run.Run, node run.Node) error {
	children, err := split.Plan(node)
	if err != nil {
		return s.failNode(r, node, "split_planner_error", err.Error())
	}
	if len(children) == 0 {
		node.Decision = run.DecisionLeaf
		node.DecisionReason = run.ReasonSplitNoChildrenFallback
		return s.handleLeaf(r, node)
	}

	childIDs := make([]string, 0, len(children))
	for _, c := range children {
		c.CreatedAt = time.Now()
		c.UpdatedAt = c.CreatedAt
		if err := s.store.AppendNode(c); err != nil {
			return err
		}
		s.emit(r.RunID, c.NodeID, run.EventNodeEnqueued, nil)
		childIDs = append(childIDs, c.NodeID)
	}

	node.ChildIDs = childIDs
	node.UpdatedAt = time.Now()
	// Parent is NOT terminalized here; it becomes terminal only once all
	// children terminalize and aggregation runs (spec.md §4.6.2 step 5).
	if err := s.store.AppendNode(node); err != nil {
		return err
	}
	s.emit(r.RunID, node.NodeID, run.EventNodeSplit, map[string]interface{}{"child_count": len(childIDs)})
	return nil
}

func (s *Scheduler) handleLeaf(r run.Run, node run.Node) error {
	out, err := leaf.Execute(node, r.Mode)
	if err != nil {
		return s.failNode(r, node, "node_execution_error", err.Error())
	}
	if err := s.store.AppendResult(out.Result); err != nil {
		return err
	}
	if out.Wiki != nil {
		if err := s.store.WriteArtifact(out.Wiki.RelPath, out.Wiki.Content); err != nil {
			return err
		}
	}

	confidence := 0.8
	if node.DecisionReason == run.ReasonSplitNoChildrenFallback {
		confidence = 0.75
	}
	node.Status = run.NodeStatusCompleted
	node.Confidence = &confidence
	node.UpdatedAt = time.Now()
	if node.Metrics == nil {
		node.Metrics = &run.NodeMetrics{}
	}
	node.Metrics.FindingsCount = len(out.Result.Findings)
	if err := s.store.AppendNode(node); err != nil {
		return err
	}
	s.emit(r.RunID, node.NodeID, run.EventNodeCompleted, nil)
	return nil
}

func (s *Scheduler) failNode(r run.Run, node run.Node, code, message string) error {
	node.Status = run.NodeStatusFailed
	node.UpdatedAt = time.Now()
	node.Errors = append(node.Errors, run.NodeErr{Code: code, Message: message, Retryable: false})
	if err := s.store.AppendNode(node); err != nil {
		return err
	}
	s.emit(r.RunID, node.NodeID, run.EventNodeFailed, map[string]interface{}{"code": code})
	return nil
}

// refreshRunState recomputes progress/output_index and the terminal status
// of the run (spec.md §4.6.3), then persists it.
func (s *Scheduler) refreshRunState(r run.Run) (run.Run, error) {
	nodes, err := s.store.LatestNodes()
	if err != nil {
		return r, err
	}
	results, err := s.store.LatestResults()
	if err != nil {
		return r, err
	}

	progress := run.Progress{NodesTotal: len(nodes)}
	var hasQueuedOrRunning bool
	for _, n := range nodes {
		if n.Depth > progress.MaxDepthSeen {
			progress.MaxDepthSeen = n.Depth
		}
		switch n.Status {
		case run.NodeStatusCompleted:
			progress.NodesCompleted++
		case run.NodeStatusFailed:
			progress.NodesFailed++
		case run.NodeStatusRunning:
			progress.ActiveNodes++
			hasQueuedOrRunning = true
		case run.NodeStatusQueued:
			hasQueuedOrRunning = true
		}
	}
	r.Progress = progress

	outputIndex := map[run.OutputEntry]bool{}
	for _, res := range results {
		for _, a := range res.Artifacts {
			outputIndex[run.OutputEntry{Kind: a.Kind, Path: a.Path}] = true
		}
	}
	entries := make([]run.OutputEntry, 0, len(outputIndex))
	for entry := range outputIndex {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	r.OutputIndex = entries

	root, ok := nodes[r.RootNodeID]
	if ok && root.Terminal() {
		switch root.Status {
		case run.NodeStatusCompleted:
			r.Status = run.RunStatusCompleted
		case run.NodeStatusFailed, run.NodeStatusCancelled:
			r.Status = run.RunStatusFailed
			if root.Status == run.NodeStatusCancelled {
				r.Status = run.RunStatusCancelled
			}
		}
		if r.CompletedAt == nil {
			now := time.Now()
			r.CompletedAt = &now
		}
	} else if !hasQueuedOrRunning && r.Status == run.RunStatusRunning {
		r.Status = run.RunStatusFailed
		now := time.Now()
		r.CompletedAt = &now
	}

	r.UpdatedAt = time.Now()
	if err := s.store.SetRun(r); err != nil {
		return r, err
	}
	return r, nil
}

// Cancel terminalizes every queued/running node as cancelled (spec.md
// §4.6.5). Legal only from non-terminal run states.
func (s *Scheduler) Cancel() (run.Run, error) {
	r, err := s.store.GetRun()
	if err != nil {
		return run.Run{}, err
	}
	if isTerminalStatus(r.Status) {
		return run.Run{}, ErrInvalidTransition
	}

	nodes, err := s.store.LatestNodes()
	if err != nil {
		return run.Run{}, err
	}
	for _, n := range nodes {
		if n.Status == run.NodeStatusQueued || n.Status == run.NodeStatusRunning {
			n.Status = run.NodeStatusCancelled
			n.UpdatedAt = time.Now()
			if err := s.store.AppendNode(n); err != nil {
				return run.Run{}, err
			}
		}
	}
	r.Status = run.RunStatusCancelled
	now := time.Now()
	r.CompletedAt = &now
	r.UpdatedAt = now
	if err := s.store.SetRun(r); err != nil {
		return run.Run{}, err
	}
	s.emit(r.RunID, "", run.EventRunCancelled, nil)
	return r, nil
}

// Resume requeues every cancelled node without a Result (spec.md §4.6.5).
// Legal from cancelled/failed/running states; a resume on a running run is
// a no-op.
func (s *Scheduler) Resume() (run.Run, error) {
	r, err := s.store.GetRun()
	if err != nil {
		return run.Run{}, err
	}
	if r.Status == run.RunStatusRunning {
		return r, nil
	}
	if r.Status != run.RunStatusCancelled && r.Status != run.RunStatusFailed {
		return run.Run{}, ErrInvalidTransition
	}

	nodes, err := s.store.LatestNodes()
	if err != nil {
		return run.Run{}, err
	}
	results, err := s.store.LatestResults()
	if err != nil {
		return run.Run{}, err
	}
	for _, n := range nodes {
		if n.Status != run.NodeStatusCancelled {
			continue
		}
		if _, hasResult := results[n.NodeID]; hasResult {
			continue
		}
		n.Status = run.NodeStatusQueued
		n.UpdatedAt = time.Now()
		if err := s.store.AppendNode(n); err != nil {
			return run.Run{}, err
		}
		s.emit(r.RunID, n.NodeID, run.EventNodeRequeued, nil)
	}

	r.Status = run.RunStatusRunning
	r.CompletedAt = nil
	r.UpdatedAt = time.Now()
	if err := s.store.SetRun(r); err != nil {
		return run.Run{}, err
	}
	s.emit(r.RunID, "", run.EventRunResumed, nil)
	return r, nil
}
