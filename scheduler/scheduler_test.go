package scheduler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/rlm-engine/run"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// Scenario 1: tiny repo, leaf-only.
func TestScenarioTinyRepoLeafOnly(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "a.txt"), "hello")
	writeFile(t, filepath.Join(repo, "b.txt"), "world")
	writeFile(t, filepath.Join(repo, "c.txt"), "!!")

	base := t.TempDir()
	store, err := run.Open(base, "run-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sched := New(store, nil)

	if _, err := sched.StartRun(StartRunParams{RunID: "run-1", Objective: "tiny", Mode: run.ModeGeneric, ScopePaths: []string{repo}, Config: run.Config{MaxDepth: 4}}); err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	res, err := sched.RunUntil(50)
	if err != nil {
		t.Fatalf("RunUntil: %v", err)
	}
	if res.Run.Status != run.RunStatusCompleted {
		t.Fatalf("expected completed run, got %s", res.Run.Status)
	}
	if res.Run.Progress.NodesTotal != 1 {
		t.Fatalf("expected 1 node total, got %d", res.Run.Progress.NodesTotal)
	}

	nodes, err := store.LatestNodes()
	if err != nil {
		t.Fatalf("LatestNodes: %v", err)
	}
	root := nodes["run-1:root"]
	if root.Decision != run.DecisionLeaf || root.DecisionReason != run.ReasonScopeSmallEnough {
		t.Fatalf("expected leaf/scope_small_enough, got %+v", root)
	}
}

// Scenario 2: split then aggregate.
func TestScenarioSplitThenAggregate(t *testing.T) {
	repo := t.TempDir()
	for _, sub := range []string{"alpha", "beta"} {
		for i := 0; i < 20; i++ {
			writeFile(t, filepath.Join(repo, sub, string(rune('a'+i))+".txt"), "x")
		}
	}

	base := t.TempDir()
	store, err := run.Open(base, "run-2")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sched := New(store, nil)
	if _, err := sched.StartRun(StartRunParams{RunID: "run-2", Objective: "review", Mode: run.ModeReview, ScopePaths: []string{repo}, Config: run.Config{MaxDepth: 4}}); err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	res, err := sched.RunUntil(100)
	if err != nil {
		t.Fatalf("RunUntil: %v", err)
	}
	if res.Run.Status != run.RunStatusCompleted {
		t.Fatalf("expected completed run, got %s: notes=%v", res.Run.Status, res.Notes)
	}

	nodes, err := store.LatestNodes()
	if err != nil {
		t.Fatalf("LatestNodes: %v", err)
	}
	root := nodes["run-2:root"]
	if root.Decision != run.DecisionSplit || len(root.ChildIDs) != 2 {
		t.Fatalf("expected root split into 2 children, got %+v", root)
	}

	results, err := store.LatestResults()
	if err != nil {
		t.Fatalf("LatestResults: %v", err)
	}
	if _, ok := results[root.NodeID]; !ok {
		t.Fatalf("expected aggregated result for root")
	}
}

// Scenario 4: cancel then resume.
func TestScenarioCancelResume(t *testing.T) {
	repo := t.TempDir()
	for i := 0; i < 20; i++ {
		writeFile(t, filepath.Join(repo, string(rune('a'+i))+".txt"), "x")
	}

	base := t.TempDir()
	store, err := run.Open(base, "run-3")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sched := New(store, nil)
	if _, err := sched.StartRun(StartRunParams{RunID: "run-3", Objective: "review", Mode: run.ModeReview, ScopePaths: []string{repo}, Config: run.Config{MaxDepth: 4}}); err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	if _, err := sched.Step(1); err != nil {
		t.Fatalf("Step: %v", err)
	}
	cancelled, err := sched.Cancel()
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != run.RunStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}

	nodes, err := store.LatestNodes()
	if err != nil {
		t.Fatalf("LatestNodes: %v", err)
	}
	for _, n := range nodes {
		if n.Status == run.NodeStatusQueued || n.Status == run.NodeStatusRunning {
			t.Fatalf("node %s still queued/running after cancel", n.NodeID)
		}
	}

	if _, err := sched.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	res, err := sched.RunUntil(1000)
	if err != nil {
		t.Fatalf("RunUntil after resume: %v", err)
	}
	if res.Run.Status != run.RunStatusCompleted {
		t.Fatalf("expected completed after resume, got %s", res.Run.Status)
	}
}

func TestCancelFromTerminalIsInvalid(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "a.txt"), "x")
	base := t.TempDir()
	store, _ := run.Open(base, "run-4")
	sched := New(store, nil)
	sched.StartRun(StartRunParams{RunID: "run-4", Mode: run.ModeGeneric, ScopePaths: []string{repo}})
	sched.RunUntil(50)
	if _, err := sched.Cancel(); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}
