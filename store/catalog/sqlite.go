package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the default catalog backend: a single file database,
// zero setup, adapted from the teacher's SQLiteStore (WAL mode, busy
// timeout, single-writer connection pool, RFC3339Nano timestamp encoding).
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewSQLiteStore opens (creating if absent) a SQLite-backed catalog at
// path. Pass ":memory:" for an ephemeral catalog, useful in tests and
// one-shot CLI invocations that don't need the index to persist.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite catalog: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("setting %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTable(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS run_catalog (
			run_id TEXT PRIMARY KEY,
			objective TEXT NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			nodes_total INTEGER NOT NULL,
			risk_score REAL NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating run_catalog table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_run_catalog_status ON run_catalog(status)"); err != nil {
		return fmt.Errorf("creating idx_run_catalog_status: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const stmt = `
		INSERT INTO run_catalog (run_id, objective, mode, status, nodes_total, risk_score, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			objective = excluded.objective,
			mode = excluded.mode,
			status = excluded.status,
			nodes_total = excluded.nodes_total,
			risk_score = excluded.risk_score,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, stmt,
		row.RunID, row.Objective, row.Mode, row.Status, row.NodesTotal, row.RiskScore,
		row.CreatedAt.Format(time.RFC3339Nano), row.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upserting run catalog row: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, runID string) (Row, error) {
	const query = `
		SELECT run_id, objective, mode, status, nodes_total, risk_score, created_at, updated_at
		FROM run_catalog WHERE run_id = ?
	`
	dbRow := s.db.QueryRowContext(ctx, query, runID)
	r, err := scanRow(dbRow.Scan)
	if err == sql.ErrNoRows {
		return Row{}, ErrNotFound
	}
	if err != nil {
		return Row{}, fmt.Errorf("querying run catalog row: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Row, error) {
	query, args := listQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing run catalog rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning run catalog row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanRow reads the eight run_catalog columns via scan (either a
// *sql.Row.Scan or a *sql.Rows.Scan), parsing the RFC3339Nano timestamp
// columns shared by both the SQLite and MySQL backends.
func scanRow(scan func(...any) error) (Row, error) {
	var r Row
	var createdAt, updatedAt string
	if err := scan(&r.RunID, &r.Objective, &r.Mode, &r.Status, &r.NodesTotal, &r.RiskScore, &createdAt, &updatedAt); err != nil {
		return Row{}, err
	}
	var err error
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Row{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return Row{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return r, nil
}

// listQuery builds the shared SELECT for List, used by both backends
// since the filter/order/limit logic doesn't vary by driver.
func listQuery(filter Filter) (string, []any) {
	query := `
		SELECT run_id, objective, mode, status, nodes_total, risk_score, created_at, updated_at
		FROM run_catalog
	`
	var conds []string
	var args []any
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Mode != "" {
		conds = append(conds, "mode = ?")
		args = append(args, filter.Mode)
	}
	if len(conds) > 0 {
		query += " WHERE " + joinAnd(conds)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return query, args
}

func joinAnd(conds []string) string {
	out := conds[0]
	for _, c := range conds[1:] {
		out += " AND " + c
	}
	return out
}
