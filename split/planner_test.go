package split

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/rlm-engine/run"
)

func TestPlanDirsPreferredOverFiles(t *testing.T) {
	root := t.TempDir()
	must(t, os.MkdirAll(filepath.Join(root, "pkga"), 0o755))
	must(t, os.MkdirAll(filepath.Join(root, "pkgb"), 0o755))
	must(t, os.WriteFile(filepath.Join(root, "top.go"), []byte("x"), 0o644))

	parent := run.Node{
		RunID:    "r1",
		NodeID:   "r1:root",
		ScopeRef: run.ScopeRef{Paths: []string{root}},
		Budgets:  run.Budgets{MaxDepth: 4, RemainingLLMCalls: 10, RemainingTokens: 40000, DeadlineEpochMs: 1},
	}

	children, err := Plan(parent)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 dir children, got %d: %+v", len(children), children)
	}
	for _, c := range children {
		if c.ScopeType != run.ScopeDir {
			t.Fatalf("expected scope_type=dir, got %s", c.ScopeType)
		}
		if c.Depth != parent.Depth+1 {
			t.Fatalf("depth(child) must equal depth(parent)+1")
		}
		if c.Budgets.DeadlineEpochMs != parent.Budgets.DeadlineEpochMs {
			t.Fatalf("deadline must be inherited verbatim")
		}
	}
}

func TestPlanFileGroupsWhenNoDirs(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		must(t, os.WriteFile(filepath.Join(root, string(rune('a'+i))+".go"), []byte("x"), 0o644))
	}
	parent := run.Node{
		RunID:    "r1",
		NodeID:   "r1:root",
		ScopeRef: run.ScopeRef{Paths: []string{root}},
		Budgets:  run.Budgets{MaxDepth: 4, RemainingLLMCalls: 10, RemainingTokens: 40000, DeadlineEpochMs: 1},
	}
	children, err := Plan(parent)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(children) != 3 { // ceil(20/8)
		t.Fatalf("expected 3 file groups, got %d", len(children))
	}
	seen := map[string]bool{}
	for _, c := range children {
		if c.ScopeType != run.ScopeFileGroup {
			t.Fatalf("expected scope_type=file_group, got %s", c.ScopeType)
		}
		for _, f := range c.ScopeRef.Paths {
			if seen[f] {
				t.Fatalf("file %s assigned to more than one child scope", f)
			}
			seen[f] = true
		}
	}
}

func TestPlanBudgetDistribution(t *testing.T) {
	root := t.TempDir()
	must(t, os.MkdirAll(filepath.Join(root, "a"), 0o755))
	must(t, os.MkdirAll(filepath.Join(root, "b"), 0o755))
	must(t, os.MkdirAll(filepath.Join(root, "c"), 0o755))
	must(t, os.MkdirAll(filepath.Join(root, "d"), 0o755))

	parent := run.Node{
		RunID:    "r1",
		NodeID:   "r1:root",
		ScopeRef: run.ScopeRef{Paths: []string{root}},
		Budgets:  run.Budgets{MaxDepth: 4, RemainingLLMCalls: 9, RemainingTokens: 40004, DeadlineEpochMs: 1},
	}
	children, err := Plan(parent)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	// (9-1)/4 = 2, (40004-4000)/4 = 9001
	for _, c := range children {
		if c.Budgets.RemainingLLMCalls != 2 {
			t.Fatalf("expected 2 llm calls per child, got %d", c.Budgets.RemainingLLMCalls)
		}
		if c.Budgets.RemainingTokens != 9001 {
			t.Fatalf("expected 9001 tokens per child, got %d", c.Budgets.RemainingTokens)
		}
	}
}

func TestPlanNoChildrenForEmptyDir(t *testing.T) {
	root := t.TempDir()
	parent := run.Node{
		RunID:    "r1",
		NodeID:   "r1:root",
		ScopeRef: run.ScopeRef{Paths: []string{root}},
		Budgets:  run.Budgets{MaxDepth: 4, RemainingLLMCalls: 9, RemainingTokens: 40004, DeadlineEpochMs: 1},
	}
	children, err := Plan(parent)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(children) != 0 {
		t.Fatalf("expected zero children for empty dir, got %d", len(children))
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
}
