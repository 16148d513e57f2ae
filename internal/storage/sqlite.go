package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage is the interface for benchmark history persistence.
type Storage interface {
	SaveRun(ctx context.Context, run *BenchRun) error
	CompleteRun(ctx context.Context, id, status, errorMessage string) error
	SaveResults(ctx context.Context, rows []ResultRow) error
	GetRun(ctx context.Context, id string) (*BenchRun, error)
	ListRuns(ctx context.Context, limit int) ([]*BenchRun, error)
	GetResults(ctx context.Context, runID string) ([]ResultRow, error)
	Close() error
}

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (or creates) the history database at dbPath.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL keeps result batch inserts cheap during a run.
	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_foreign_keys=ON", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStorage{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bench_runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		mode TEXT NOT NULL,
		call_count INTEGER NOT NULL,
		num_accounts INTEGER NOT NULL,
		gas_price_gwei INTEGER NOT NULL,
		status TEXT DEFAULT 'running',
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_bench_runs_started ON bench_runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS bench_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		contract TEXT NOT NULL,
		idx INTEGER NOT NULL,
		gas_used INTEGER NOT NULL,
		tx_hash TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES bench_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_bench_results_run ON bench_results(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun inserts a new run in "running" state.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run *BenchRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bench_runs (id, started_at, mode, call_count, num_accounts, gas_price_gwei, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, string(run.Mode), run.CallCount,
		run.NumAccounts, run.GasPriceGwei, run.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with the given status.
func (s *SQLiteStorage) CompleteRun(ctx context.Context, id, status, errorMessage string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bench_runs SET completed_at = ?, status = ?, error_message = ?
		WHERE id = ?`,
		time.Now(), status, errorMessage, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// SaveResults inserts result rows in a single transaction.
func (s *SQLiteStorage) SaveResults(ctx context.Context, rows []ResultRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bench_results (run_id, contract, idx, gas_used, tx_hash)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.RunID, row.Contract, row.Index, row.GasUsed, row.TxHash); err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}
	}

	return tx.Commit()
}

// GetRun fetches a single run by ID.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*BenchRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, completed_at, mode, call_count, num_accounts,
		       gas_price_gwei, status, COALESCE(error_message, '')
		FROM bench_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]*BenchRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, completed_at, mode, call_count, num_accounts,
		       gas_price_gwei, status, COALESCE(error_message, '')
		FROM bench_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*BenchRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetResults returns all result rows of a run, in insert order.
func (s *SQLiteStorage) GetResults(ctx context.Context, runID string) ([]ResultRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, contract, idx, gas_used, tx_hash
		FROM bench_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	var results []ResultRow
	for rows.Next() {
		var r ResultRow
		if err := rows.Scan(&r.RunID, &r.Contract, &r.Index, &r.GasUsed, &r.TxHash); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*BenchRun, error) {
	var run BenchRun
	var mode string
	var completedAt sql.NullTime

	err := row.Scan(&run.ID, &run.StartedAt, &completedAt, &mode,
		&run.CallCount, &run.NumAccounts, &run.GasPriceGwei,
		&run.Status, &run.ErrorMessage)
	if err != nil {
		return nil, err
	}

	run.Mode = RunMode(mode)
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return &run, nil
}
