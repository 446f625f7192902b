// Package store provides optional persistence for completed workflow runs.
// It is not on the engine's execution path (workflow.Engine.Execute needs
// nothing from it); a host wires a RunStore around an Engine to archive
// RunResults for later audit or replay-verification, the way the teacher's
// Store[S] (graph/store/store.go) persists workflow state for resumption.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/meridianflow/workflow/workflow"
)

// ErrNotFound is returned when a requested run ID does not exist.
var ErrNotFound = errors.New("store: not found")

// RunRecord is the archived form of one completed workflow run: enough to
// re-verify its Merkle root later without re-executing the workflow.
type RunRecord struct {
	RunID        string             `json:"run_id"`
	Status       workflow.RunStatus `json:"status"`
	MerkleRoot   string             `json:"merkle_root"`
	Receipts     []workflow.Receipt `json:"receipts"`
	FailedStep   string             `json:"failed_step,omitempty"`
	FailureCode  workflow.ErrCode   `json:"failure_code,omitempty"`
	WorkflowJSON []byte             `json:"workflow_json"`
	ArchivedAt   time.Time          `json:"archived_at"`
}

// RunStore archives completed runs and retrieves them by run ID.
type RunStore interface {
	// SaveRun persists rec. Calling SaveRun twice for the same RunID
	// overwrites the prior record.
	SaveRun(ctx context.Context, rec RunRecord) error

	// LoadRun retrieves a previously archived run. Returns ErrNotFound if
	// runID is unknown.
	LoadRun(ctx context.Context, runID string) (RunRecord, error)

	// ListRuns returns run IDs in archival order, most recent first,
	// bounded by limit (0 means no limit).
	ListRuns(ctx context.Context, limit int) ([]string, error)

	// Close releases any underlying resources.
	Close() error
}

// RecordFrom builds a RunRecord from an engine result and the workflow
// document that produced it.
func RecordFrom(result workflow.RunResult, workflowJSON []byte) RunRecord {
	return RunRecord{
		RunID:        result.RunID,
		Status:       result.Status,
		MerkleRoot:   result.MerkleRoot,
		Receipts:     result.Receipts,
		FailedStep:   result.FailedStep,
		FailureCode:  result.FailureCode,
		WorkflowJSON: workflowJSON,
	}
}
