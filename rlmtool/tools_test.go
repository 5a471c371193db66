package rlmtool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/rlm-engine/run"
	"github.com/dshills/rlm-engine/scheduler"
	"github.com/dshills/rlm-engine/store/catalog"
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

func TestToolsetStartStatusAndRun(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "a.txt"), "hello")

	base := t.TempDir()
	tools := NewToolset(base, nil)

	r, err := tools.Start(scheduler.StartRunParams{
		RunID:      "run-1",
		Objective:  "tiny",
		Mode:       run.ModeGeneric,
		ScopePaths: []string{repo},
		Config:     run.Config{MaxDepth: 4},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if r.Status != run.RunStatusRunning {
		t.Fatalf("expected a freshly started run, got status %s", r.Status)
	}

	status, err := tools.Status("run-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Run.RunID != "run-1" {
		t.Errorf("expected run-1, got %s", status.Run.RunID)
	}
	if status.DepthHistogram["0"] != 1 {
		t.Errorf("expected depth_histogram[0]=1, got %v", status.DepthHistogram)
	}

	res, err := tools.Run("run-1", 50)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Run.Status != run.RunStatusCompleted {
		t.Fatalf("expected completed run, got %s", res.Run.Status)
	}
}

func TestToolsetCancelThenResume(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "a.txt"), "hello")
	writeFile(t, filepath.Join(repo, "b.txt"), "world")

	base := t.TempDir()
	tools := NewToolset(base, nil)

	if _, err := tools.Start(scheduler.StartRunParams{
		RunID:      "run-2",
		Objective:  "tiny",
		Mode:       run.ModeGeneric,
		ScopePaths: []string{repo},
		Config:     run.Config{MaxDepth: 4},
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cancelled, err := tools.Cancel("run-2")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != run.RunStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}

	resumed, err := tools.Resume("run-2")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Status == run.RunStatusCancelled {
		t.Fatalf("expected resume to leave the cancelled status, got %s", resumed.Status)
	}
}

func TestToolsetSynthesizeAndExport(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "a.txt"), "hello")

	base := t.TempDir()
	tools := NewToolset(base, nil)

	if _, err := tools.Start(scheduler.StartRunParams{
		RunID:      "run-3",
		Objective:  "find issues",
		Mode:       run.ModeReview,
		ScopePaths: []string{repo},
		Config:     run.Config{MaxDepth: 4},
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := tools.Run("run-3", 50); err != nil {
		t.Fatalf("Run: %v", err)
	}

	artifacts, err := tools.Synthesize("run-3")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if artifacts.Ranked.RunID != "run-3" {
		t.Errorf("expected ranked findings for run-3, got %q", artifacts.Ranked.RunID)
	}
	if _, err := os.Stat(filepath.Join(base, "run-3", "artifacts/review/report.md")); err != nil {
		t.Errorf("expected report.md to be written: %v", err)
	}

	doc, err := tools.Export("run-3")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if doc.RunID != "run-3" {
		t.Errorf("expected export doc for run-3, got %q", doc.RunID)
	}
	if _, err := os.Stat(filepath.Join(base, "run-3", "artifacts/export.json")); err != nil {
		t.Errorf("expected export.json to be written: %v", err)
	}
}

func TestToolsetRefreshesAttachedCatalog(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "a.txt"), "hello")

	base := t.TempDir()
	store, err := catalog.NewSQLiteStore(filepath.Join(base, "catalog.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	tools := NewToolset(base, nil).WithCatalog(store)

	if _, err := tools.Start(scheduler.StartRunParams{
		RunID:      "run-4",
		Objective:  "tiny",
		Mode:       run.ModeGeneric,
		ScopePaths: []string{repo},
		Config:     run.Config{MaxDepth: 4},
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	row, err := store.Get(context.Background(), "run-4")
	if err != nil {
		t.Fatalf("catalog Get: %v", err)
	}
	if row.Status != run.RunStatusRunning {
		t.Errorf("expected catalog row to reflect the running status, got %s", row.Status)
	}

	if _, err := tools.Run("run-4", 50); err != nil {
		t.Fatalf("Run: %v", err)
	}
	row, err = store.Get(context.Background(), "run-4")
	if err != nil {
		t.Fatalf("catalog Get: %v", err)
	}
	if row.Status != run.RunStatusCompleted {
		t.Errorf("expected catalog row to reflect completion, got %s", row.Status)
	}
}
