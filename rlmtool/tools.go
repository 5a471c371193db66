// Package rlmtool exposes the tool surface (spec.md §6.2): one function per
// tool (Start, Step, Run, Status, Cancel, Resume, Synthesize, Export, and
// the interactive Query), so an out-of-scope agent host's tool-registration
// surface can bind to these functions without this module needing to know
// anything about that host. Adapted in spirit from the teacher's own
// examples/multi-llm-review/main.go, which drives its workflow.Engine
// directly from a thin entrypoint rather than through a registration
// framework.
package rlmtool

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/rlm-engine/emit"
	"github.com/dshills/rlm-engine/run"
	"github.com/dshills/rlm-engine/scheduler"
	"github.com/dshills/rlm-engine/store/catalog"
	"github.com/dshills/rlm-engine/synthesis"
)

// Toolset binds repo_rlm_* tool calls to run directories under BaseDir.
type Toolset struct {
	baseDir string
	emitter emit.Emitter
	catalog catalog.Store
}

// NewToolset returns a Toolset rooted at baseDir. A nil emitter defaults
// to a no-op, matching scheduler.New's convention.
func NewToolset(baseDir string, emitter emit.Emitter) *Toolset {
	if emitter == nil {
		emitter = emit.NullEmitter{}
	}
	return &Toolset{baseDir: baseDir, emitter: emitter}
}

// WithCatalog attaches a Run Catalog Index that every tool call refreshes
// after it writes run.json. The catalog is purely additive: Toolset never
// reads it back to make a decision, and a nil catalog (the default) makes
// every refresh a no-op.
func (t *Toolset) WithCatalog(c catalog.Store) *Toolset {
	t.catalog = c
	return t
}

// refreshCatalog upserts r into the attached catalog, if any. riskScore is
// 0 for calls that don't already have one to hand (Start/Step/Run/Cancel/
// Resume); Synthesize supplies the real score once it has computed one.
func (t *Toolset) refreshCatalog(r run.Run, riskScore float64) {
	if t.catalog == nil {
		return
	}
	// Best-effort: the run directory remains the source of truth, so a
	// failed catalog refresh is not a tool-call failure.
	_ = t.catalog.Upsert(context.Background(), catalog.RowFromRun(r, riskScore))
}

func (t *Toolset) open(runID string) (*scheduler.Scheduler, *run.Store, error) {
	store, err := run.Open(t.baseDir, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("rlmtool: opening run %s: %w", runID, err)
	}
	return scheduler.New(store, t.emitter), store, nil
}

// Start implements repo_rlm_start.
func (t *Toolset) Start(p scheduler.StartRunParams) (run.Run, error) {
	if p.Now.IsZero() {
		p.Now = time.Now()
	}
	s, _, err := t.open(p.RunID)
	if err != nil {
		return run.Run{}, err
	}
	r, err := s.StartRun(p)
	if err != nil {
		return run.Run{}, err
	}
	t.refreshCatalog(r, 0)
	return r, nil
}

// Step implements repo_rlm_step: process at most maxNodes queued nodes.
func (t *Toolset) Step(runID string, maxNodes int) (scheduler.StepResult, error) {
	s, _, err := t.open(runID)
	if err != nil {
		return scheduler.StepResult{}, err
	}
	res, err := s.Step(maxNodes)
	if err != nil {
		return scheduler.StepResult{}, err
	}
	t.refreshCatalog(res.Run, 0)
	return res, nil
}

// Run implements repo_rlm_run: drive the run to completion or until
// maxNodes nodes have been processed, whichever comes first.
func (t *Toolset) Run(runID string, maxNodes int) (scheduler.StepResult, error) {
	s, _, err := t.open(runID)
	if err != nil {
		return scheduler.StepResult{}, err
	}
	res, err := s.RunUntil(maxNodes)
	if err != nil {
		return scheduler.StepResult{}, err
	}
	t.refreshCatalog(res.Run, 0)
	return res, nil
}

// Status implements repo_rlm_status (spec.md §6.2): run + latest nodes +
// queue events + result count + depth histogram + active branch preview.
func (t *Toolset) Status(runID string) (StatusDoc, error) {
	_, store, err := t.open(runID)
	if err != nil {
		return StatusDoc{}, err
	}
	r, err := store.GetRun()
	if err != nil {
		return StatusDoc{}, fmt.Errorf("rlmtool: loading run %s: %w", runID, err)
	}
	nodes, err := store.LatestNodes()
	if err != nil {
		return StatusDoc{}, fmt.Errorf("rlmtool: loading nodes for %s: %w", runID, err)
	}
	queueEvents, err := store.QueueEvents()
	if err != nil {
		return StatusDoc{}, fmt.Errorf("rlmtool: loading queue events for %s: %w", runID, err)
	}
	results, err := store.LatestResults()
	if err != nil {
		return StatusDoc{}, fmt.Errorf("rlmtool: loading results for %s: %w", runID, err)
	}
	return buildStatusDoc(r, nodes, queueEvents, len(results)), nil
}

// Cancel implements repo_rlm_cancel.
func (t *Toolset) Cancel(runID string) (run.Run, error) {
	s, _, err := t.open(runID)
	if err != nil {
		return run.Run{}, err
	}
	r, err := s.Cancel()
	if err != nil {
		return run.Run{}, err
	}
	t.refreshCatalog(r, 0)
	return r, nil
}

// Resume implements repo_rlm_resume.
func (t *Toolset) Resume(runID string) (run.Run, error) {
	s, _, err := t.open(runID)
	if err != nil {
		return run.Run{}, err
	}
	r, err := s.Resume()
	if err != nil {
		return run.Run{}, err
	}
	t.refreshCatalog(r, 0)
	return r, nil
}

// Synthesize implements repo_rlm_synthesize (spec.md §4.7): builds the
// review artifacts (and, for wiki-mode runs, the wiki artifacts) from the
// run's latest node/result snapshots and writes them under the run's
// artifacts/ tree.
func (t *Toolset) Synthesize(runID string) (synthesis.ReviewArtifacts, error) {
	_, store, err := t.open(runID)
	if err != nil {
		return synthesis.ReviewArtifacts{}, err
	}
	r, err := store.GetRun()
	if err != nil {
		return synthesis.ReviewArtifacts{}, fmt.Errorf("rlmtool: loading run %s: %w", runID, err)
	}
	nodes, err := store.LatestNodes()
	if err != nil {
		return synthesis.ReviewArtifacts{}, fmt.Errorf("rlmtool: loading nodes for %s: %w", runID, err)
	}
	results, err := store.LatestResults()
	if err != nil {
		return synthesis.ReviewArtifacts{}, fmt.Errorf("rlmtool: loading results for %s: %w", runID, err)
	}

	artifacts := synthesis.BuildReview(r, nodes, results)
	for relPath, data := range map[string][]byte{
		"artifacts/review/findings-ranked.json":   artifacts.RankedJSON,
		"artifacts/review/findings-clusters.json": artifacts.ClustersJSON,
		"artifacts/review/summary.json":           artifacts.SummaryJSON,
		"artifacts/review/report.md":              artifacts.ReportMD,
		"artifacts/review/codequality.json":       artifacts.CodeQuality,
		"artifacts/review/sarif.json":             artifacts.SARIF,
	} {
		if err := store.WriteArtifact(relPath, data); err != nil {
			return synthesis.ReviewArtifacts{}, fmt.Errorf("rlmtool: writing %s: %w", relPath, err)
		}
	}

	if r.Mode == run.ModeWiki {
		wiki := synthesis.BuildWiki(r, results)
		for relPath, data := range map[string][]byte{
			"artifacts/wiki/index.md":                wiki.IndexMD,
			"artifacts/wiki/module-index.md":         wiki.ModuleIndexMD,
			"artifacts/wiki/architecture-summary.md": wiki.ArchitectureSummaryMD,
		} {
			if err := store.WriteArtifact(relPath, data); err != nil {
				return synthesis.ReviewArtifacts{}, fmt.Errorf("rlmtool: writing %s: %w", relPath, err)
			}
		}
	}

	t.refreshCatalog(r, artifacts.Ranked.RiskScore)
	return artifacts, nil
}

// Export implements repo_rlm_export (spec.md §6.2): re-derives the review
// artifacts and bundles the CI export document alongside them.
func (t *Toolset) Export(runID string) (synthesis.ExportDoc, error) {
	_, store, err := t.open(runID)
	if err != nil {
		return synthesis.ExportDoc{}, err
	}
	r, err := store.GetRun()
	if err != nil {
		return synthesis.ExportDoc{}, fmt.Errorf("rlmtool: loading run %s: %w", runID, err)
	}

	artifacts, err := t.Synthesize(runID)
	if err != nil {
		return synthesis.ExportDoc{}, err
	}
	nodes, err := store.LatestNodes()
	if err != nil {
		return synthesis.ExportDoc{}, fmt.Errorf("rlmtool: loading nodes for %s: %w", runID, err)
	}

	doc := synthesis.BuildExport(r, artifacts, nodes)
	if err := store.WriteArtifact("artifacts/export.json", synthesis.ExportJSON(doc)); err != nil {
		return synthesis.ExportDoc{}, fmt.Errorf("rlmtool: writing export.json: %w", err)
	}
	return doc, nil
}
