package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/meridianflow/workflow/workflow"
)

// MySQLRunStore is a RunStore backed by MySQL/MariaDB, grounded on the
// teacher's MySQLStore (graph/store/mysql.go) connection pooling: for
// production deployments with multiple engine hosts sharing one archive.
type MySQLRunStore struct {
	db *sql.DB
}

// NewMySQLRunStore opens a connection pool against dsn and ensures the
// runs table exists. dsn follows the go-sql-driver/mysql DSN format, e.g.
// "user:pass@tcp(localhost:3306)/workflows?parseTime=true".
func NewMySQLRunStore(dsn string) (*MySQLRunStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS runs (
		run_id VARCHAR(255) PRIMARY KEY,
		status VARCHAR(32) NOT NULL,
		merkle_root VARCHAR(128) NOT NULL,
		failed_step VARCHAR(255),
		failure_code VARCHAR(64),
		receipts_json LONGTEXT NOT NULL,
		workflow_json LONGTEXT NOT NULL,
		archived_at DATETIME NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create table: %w", err)
	}
	return &MySQLRunStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *MySQLRunStore) Close() error { return s.db.Close() }

func (s *MySQLRunStore) SaveRun(ctx context.Context, rec RunRecord) error {
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
	ON DUPLICATE KEY UPDATE
		status = VALUES(status),
		merkle_root = VALUES(merkle_root),
		failed_step = VALUES(failed_step),
		failure_code = VALUES(failure_code),
		receipts_json = VALUES(receipts_json),
		workflow_json = VALUES(workflow_json),
		archived_at = VALUES(archived_at)`,
		rec.RunID, string(rec.Status), rec.MerkleRoot, rec.FailedStep, string(rec.FailureCode),
		string(receiptsJSON), string(rec.WorkflowJSON), archivedAt)
	if err != nil {
		return fmt.Errorf("store: save run: %w", err)
	}
	return nil
}

func (s *MySQLRunStore) LoadRun(ctx context.Context, runID string) (RunRecord, error) {
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

func (s *MySQLRunStore) ListRuns(ctx context.Context, limit int) ([]string, error) {
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
