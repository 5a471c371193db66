// Package catalog implements the Run Catalog Index: a secondary, queryable
// index of runs across a base directory (supplemented feature, see
// SPEC_FULL.md "Run Catalog Index"). It is a derived, rebuildable cache
// sitting alongside the teacher's two SQL store backends
// (graph/store/sqlite.go, graph/store/mysql.go), repurposed from
// checkpoint storage to a read-mostly row-per-run index refreshed
// whenever a run's run.json is written. The run directory (package run)
// remains the sole source of truth; nothing here is consulted for
// correctness-critical decisions.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/rlm-engine/run"
)

// ErrNotFound is returned when a requested run id has no catalog row.
var ErrNotFound = errors.New("not found")

// Row is one run's catalog entry.
type Row struct {
	RunID      string
	Objective  string
	Mode       string
	Status     string
	NodesTotal int
	RiskScore  float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Filter narrows a List query. Zero values are unconstrained.
type Filter struct {
	Status string
	Mode   string
	Limit  int
}

// Store is the catalog persistence contract. Implementations: SQLite
// (default, pure Go) and MySQL (opt-in via DSN).
type Store interface {
	// Upsert inserts or replaces a run's catalog row, keyed by RunID.
	Upsert(ctx context.Context, row Row) error

	// Get retrieves one run's catalog row.
	Get(ctx context.Context, runID string) (Row, error)

	// List returns rows matching filter, newest CreatedAt first.
	List(ctx context.Context, filter Filter) ([]Row, error)

	// Close releases the underlying database handle.
	Close() error
}

// RowFromRun derives a catalog row from a run snapshot and its current
// risk score (synthesis.RiskScore, computed separately since the catalog
// package has no dependency on synthesis). Called whenever run.json is
// written, so the catalog stays current with the run directory without
// the run directory ever depending back on the catalog.
func RowFromRun(r run.Run, riskScore float64) Row {
	return Row{
		RunID:      r.RunID,
		Objective:  r.Objective,
		Mode:       r.Mode,
		Status:     r.Status,
		NodesTotal: r.Progress.NodesTotal,
		RiskScore:  riskScore,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}
