package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is the opt-in catalog backend for deployments that already
// run MySQL/MariaDB and want the catalog alongside other operational
// tables, adapted from the teacher's MySQLStore connection pool sizing.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a MySQL-backed catalog using dsn, e.g.
// "user:pass@tcp(localhost:3306)/rlm".
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening mysql catalog: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging mysql catalog: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) createTable(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS run_catalog (
			run_id VARCHAR(128) PRIMARY KEY,
			objective TEXT NOT NULL,
			mode VARCHAR(32) NOT NULL,
			status VARCHAR(32) NOT NULL,
			nodes_total INT NOT NULL,
			risk_score DOUBLE NOT NULL,
			created_at VARCHAR(40) NOT NULL,
			updated_at VARCHAR(40) NOT NULL,
			INDEX idx_run_catalog_status (status)
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating run_catalog table: %w", err)
	}
	return nil
}

func (s *MySQLStore) Upsert(ctx context.Context, row Row) error {
	const stmt = `
		INSERT INTO run_catalog (run_id, objective, mode, status, nodes_total, risk_score, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			objective = VALUES(objective),
			mode = VALUES(mode),
			status = VALUES(status),
			nodes_total = VALUES(nodes_total),
			risk_score = VALUES(risk_score),
			updated_at = VALUES(updated_at)
	`
	_, err := s.db.ExecContext(ctx, stmt,
		row.RunID, row.Objective, row.Mode, row.Status, row.NodesTotal, row.RiskScore,
		row.CreatedAt.Format(time.RFC3339Nano), row.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upserting run catalog row: %w", err)
	}
	return nil
}

func (s *MySQLStore) Get(ctx context.Context, runID string) (Row, error) {
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

func (s *MySQLStore) List(ctx context.Context, filter Filter) ([]Row, error) {
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

func (s *MySQLStore) Close() error {
	return s.db.Close()
}
