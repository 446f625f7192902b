// Package sqlitestore is a reference Adapter exercising the storage
// capability surface: it claims the "db.put"/"db.get" step types and
// persists small key/value records into a SQLite database, grounded on
// the teacher's SQLiteStore (graph/store/sqlite.go) connection and
// pragma setup, repurposed from workflow-state checkpoints to a plain
// key/value table a step can address directly.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/meridianflow/workflow/workflow"
)

const (
	StepTypePut = "db.put"
	StepTypeGet = "db.get"
)

// Adapter persists and retrieves string-keyed JSON values in a single
// SQLite table. Deterministic is false for db.get (depends on prior
// writes outside the run) and true for db.put given the same key/value.
type Adapter struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens the SQLite database at path and ensures its
// schema exists.
func Open(path string) (*Adapter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: wal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: create table: %w", err)
	}
	return &Adapter{db: db}, nil
}

// Close releases the underlying database connection.
func (a *Adapter) Close() error { return a.db.Close() }

func (a *Adapter) Manifest() workflow.AdapterManifest {
	return workflow.AdapterManifest{
		ID:      "sqlitestore",
		Version: "1.0.0",
		StepTypes: []workflow.StepTypeDescriptor{
			{Type: StepTypePut, Deterministic: true},
			{Type: StepTypeGet, Deterministic: false},
		},
	}
}

func (a *Adapter) Validate(step workflow.Step, params workflow.Value) error {
	key, ok := params.Get("key")
	if !ok || key.Kind != workflow.KindString || key.Str == "" {
		return fmt.Errorf("sqlitestore: params.key is required")
	}
	if step.Type == StepTypePut {
		if _, ok := params.Get("value"); !ok {
			return fmt.Errorf("sqlitestore: params.value is required for %s", StepTypePut)
		}
	}
	return nil
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *Adapter) Execute(ctx context.Context, step workflow.Step, params workflow.Value) (workflow.Receipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key, _ := params.Get("key")

	switch step.Type {
	case StepTypePut:
		val, _ := params.Get("value")
		raw, err := val.MarshalJSON()
		if err != nil {
			return errReceipt(step.ID, "sqlitestore.marshal_failed", err.Error()), nil
		}
		if _, err := a.db.ExecContext(ctx, `INSERT INTO kv(key, value) VALUES(?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key.Str, string(raw)); err != nil {
			return errReceipt(step.ID, "sqlitestore.write_failed", err.Error()), nil
		}
		out := workflow.NewMap()
		out.Set("key", key)
		return workflow.Receipt{StepID: step.ID, Status: workflow.StatusSuccess, Output: out}, nil

	case StepTypeGet:
		var raw string
		err := a.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key.Str).Scan(&raw)
		if err == sql.ErrNoRows {
			return errReceipt(step.ID, "sqlitestore.not_found", "no value for key "+key.Str), nil
		}
		if err != nil {
			return errReceipt(step.ID, "sqlitestore.read_failed", err.Error()), nil
		}
		var val workflow.Value
		if err := val.UnmarshalJSON([]byte(raw)); err != nil {
			return errReceipt(step.ID, "sqlitestore.unmarshal_failed", err.Error()), nil
		}
		out := workflow.NewMap()
		out.Set("key", key)
		out.Set("value", val)
		return workflow.Receipt{StepID: step.ID, Status: workflow.StatusSuccess, Output: out}, nil

	default:
		return errReceipt(step.ID, "sqlitestore.unknown_type", "unrecognized step type "+step.Type), nil
	}
}

func errReceipt(stepID, code, msg string) workflow.Receipt {
	return workflow.Receipt{
		StepID: stepID,
		Status: workflow.StatusError,
		Error:  &workflow.ReceiptError{Code: code, Message: msg, Retryable: false},
	}
}
