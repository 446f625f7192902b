package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/meridianflow/workflow/workflow"
)

// SQLiteRunStore is a single-file RunStore, grounded on the teacher's
// SQLiteStore (graph/store/sqlite.go): WAL mode, a single writer
// connection, auto-migrated schema.
type SQLiteRunStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRunStore opens or creates a SQLite database at path and ensures
// its schema exists.
func NewSQLiteRunStore(path string) (*SQLiteRunStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: wal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		merkle_root TEXT NOT NULL,
		failed_step TEXT,
		failure_code TEXT,
		receipts_json TEXT NOT NULL,
		workflow_json TEXT NOT NULL,
		archived_at TIMESTAMP NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create table: %w", err)
	}
	return &SQLiteRunStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteRunStore) Close() error { return s.db.Close() }

func (s *SQLiteRunStore) SaveRun(ctx context.Context, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	receiptsJSON, err := json.Marshal(rec.Receipts)
	if err != nil {
		return fmt.Errorf("store: marshal receipts: %w", err)
	}
	archivedAt := rec.ArchivedAt
	if archivedAt.IsZero() {
		archivedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO runs(
		run_id, status, merkle_root, failed_step, failure_code, receipts_json, workflow_json, archived_at
	) VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		status = excluded.status,
		merkle_root = excluded.merkle_root,
		failed_step = excluded.failed_step,
		failure_code = excluded.failure_code,
		receipts_json = excluded.receipts_json,
		workflow_json = excluded.workflow_json,
		archived_at = excluded.archived_at`,
		rec.RunID, string(rec.Status), rec.MerkleRoot, rec.FailedStep, string(rec.FailureCode),
		string(receiptsJSON), string(rec.WorkflowJSON), archivedAt)
	if err != nil {
		return fmt.Errorf("store: save run: %w", err)
	}
	return nil
}

func (s *SQLiteRunStore) LoadRun(ctx context.Context, runID string) (RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec RunRecord
	var status, failureCode string
	var failedStep sql.NullString
	var receiptsJSON, workflowJSON string
	row := s.db.QueryRowContext(ctx, `SELECT run_id, status, merkle_root, failed_step, failure_code, receipts_json, workflow_json, archived_at
		FROM runs WHERE run_id = ?`, runID)
	if err := row.Scan(&rec.RunID, &status, &rec.MerkleRoot, &failedStep, &failureCode, &receiptsJSON, &workflowJSON, &rec.ArchivedAt); err != nil {
		if err == sql.ErrNoRows {
			return RunRecord{}, ErrNotFound
		}
		return RunRecord{}, fmt.Errorf("store: load run: %w", err)
	}
	rec.Status = workflow.RunStatus(status)
	rec.FailedStep = failedStep.String
	rec.FailureCode = workflow.ErrCode(failureCode)
	rec.WorkflowJSON = []byte(workflowJSON)
	if err := json.Unmarshal([]byte(receiptsJSON), &rec.Receipts); err != nil {
		return RunRecord{}, fmt.Errorf("store: unmarshal receipts: %w", err)
	}
	return rec, nil
}

func (s *SQLiteRunStore) ListRuns(ctx context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT run_id FROM runs ORDER BY archived_at DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		query += ` LIMIT ?`
		rows, err = s.db.QueryContext(ctx, query, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
