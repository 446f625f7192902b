package workflow

import (
	"context"

	"github.com/google/uuid"
)

// RunStatus is the terminal outcome of a run.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "failed"
)

// RunResult is what Execute and VerifyDeterminism return: every receipt
// committed during the run, in the workflow's topological order (not the
// order in which steps finished), and the Merkle root over them.
type RunResult struct {
	RunID       string
	Status      RunStatus
	Receipts    []Receipt
	MerkleRoot  string
	FailedStep  string
	FailureCode ErrCode
}

// Engine executes Workflow documents against a Registry of adapters. It is
// the facade the rest of the package builds toward: parse, build the DAG,
// schedule steps, commit receipts, and report the Merkle root. Grounded on
// the teacher's Engine (graph/engine.go) run loop, generalized from a
// typed-state reducer loop to a dynamic-value step DAG.
type Engine struct {
	registry *Registry
	cfg      *engineConfig
}

// New constructs an Engine bound to registry, applying opts over the
// package defaults.
func New(registry *Registry, opts ...Option) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return &Engine{registry: registry, cfg: cfg}, nil
}

// Execute parses, validates, and runs data as a workflow document, using a
// freshly generated run id, and returns the committed receipts and the
// resulting Merkle root.
func (e *Engine) Execute(ctx context.Context, data []byte) (RunResult, error) {
	return e.ExecuteWithRunID(ctx, data, uuid.NewString())
}

// ExecuteWithRunID behaves like Execute but uses the caller-supplied run
// id. Re-running the same workflow with the same run id and the same
// adapters is expected to reproduce the same Merkle root; the run id
// itself only seeds the RNG adapters can draw on and never influences
// dispatch order, which is fixed by the workflow's own DAG shape.
func (e *Engine) ExecuteWithRunID(ctx context.Context, data []byte, runID string) (RunResult, error) {
	w, err := ParseWorkflow(data)
	if err != nil {
		return RunResult{RunID: runID, Status: RunStatusError}, err
	}
	return e.executeParsed(ctx, w, runID)
}

func (e *Engine) executeParsed(ctx context.Context, w *Workflow, runID string) (RunResult, error) {
	graph, err := buildStepGraph(w)
	if err != nil {
		e.cfg.metrics.recordRunCompletion(string(RunStatusError))
		return RunResult{RunID: runID, Status: RunStatusError}, err
	}

	if err := e.checkAdaptersRegistered(w); err != nil {
		e.cfg.metrics.recordRunCompletion(string(RunStatusError))
		ee, _ := err.(*EngineError)
		var failedStep string
		var failureCode ErrCode
		if ee != nil {
			failedStep, failureCode = ee.StepID, ee.Code
		}
		return RunResult{RunID: runID, Status: RunStatusError, FailedStep: failedStep, FailureCode: failureCode}, err
	}

	store := newReceiptStore()
	sched := newScheduler(graph, e.registry, e.cfg.concurrency, e.cfg.defaultTimeout, e.cfg.emitter, e.cfg.metrics, e.cfg.resourcePolicy)

	e.cfg.emitter.Emit(runEvent(runID, "run_start", nil))
	results, runErr := sched.run(ctx, runID)

	var failedStep string
	var failureCode ErrCode
	for _, res := range results {
		if res.receipt.StepID == "" {
			continue
		}
		if _, commitErr := store.append(res.receipt); commitErr != nil && runErr == nil {
			runErr = commitErr
		}
	}

	if runErr != nil {
		if ee, ok := runErr.(*EngineError); ok {
			failedStep = ee.StepID
			failureCode = ee.Code
		}
		e.cfg.emitter.Emit(runEvent(runID, "run_error", map[string]interface{}{"error": runErr.Error()}))
		e.cfg.metrics.recordRunCompletion(string(RunStatusError))
		return RunResult{
			RunID:       runID,
			Status:      RunStatusError,
			Receipts:    store.all(),
			MerkleRoot:  store.root(),
			FailedStep:  failedStep,
			FailureCode: failureCode,
		}, runErr
	}

	root := store.root()
	e.cfg.emitter.Emit(runEvent(runID, "run_complete", map[string]interface{}{"merkle_root": root}))
	e.cfg.metrics.recordRunCompletion(string(RunStatusSuccess))

	return RunResult{
		RunID:      runID,
		Status:     RunStatusSuccess,
		Receipts:   store.all(),
		MerkleRoot: root,
	}, nil
}

// checkAdaptersRegistered pre-checks every step's adapter existence before
// the run begins (spec §4.G step 1, §4.I step 1): "Pre-check every step's
// adapter existence." A missing adapter is reported up front so no step
// runs and produces real side effects before the gap is discovered.
func (e *Engine) checkAdaptersRegistered(w *Workflow) error {
	for _, step := range w.Steps {
		if _, ok := e.registry.Lookup(step.Type); !ok {
			return &EngineError{Code: ErrCodeNoAdapterForType, StepID: step.ID, Message: "no adapter registered for type " + step.Type, Cause: ErrNoAdapterForType}
		}
	}
	return nil
}

// VerifyDeterminism re-executes data under the same run id that produced
// expectedRoot and reports whether the freshly computed Merkle root
// matches. This is the engine's end-to-end check of the determinism
// contract: same workflow, same run id, same adapters, same root. Unlike
// Replay, this invokes every adapter again.
func (e *Engine) VerifyDeterminism(ctx context.Context, data []byte, runID string, expectedRoot string) (bool, RunResult, error) {
	result, err := e.ExecuteWithRunID(ctx, data, runID)
	if err != nil {
		e.cfg.metrics.recordReplayVerification("not_checked")
		return false, result, err
	}
	matched := result.MerkleRoot == expectedRoot
	if matched {
		e.cfg.metrics.recordReplayVerification("true")
	} else {
		e.cfg.metrics.recordReplayVerification("false")
	}
	return matched, result, nil
}

// ReceiptVerification is one step's outcome from Replay: whether its
// receipt's leaf is included under the recomputed Merkle root.
type ReceiptVerification struct {
	StepID   string
	Verified bool
}

// Replay recomputes the Merkle tree from a standalone receipt sequence
// (e.g. loaded from storage) and reports, per step, whether its receipt's
// leaf verifies under expectedRoot. This operation does not invoke any
// adapter (spec §4.I, testable property 7, scenario (f)).
func (e *Engine) Replay(receipts []Receipt, expectedRoot string) ([]ReceiptVerification, error) {
	results, err := VerifyReceipts(receipts, expectedRoot)
	if err != nil {
		return nil, err
	}
	allVerified := true
	for _, r := range results {
		if !r.Verified {
			allVerified = false
			break
		}
	}
	if allVerified {
		e.cfg.metrics.recordReplayVerification("true")
	} else {
		e.cfg.metrics.recordReplayVerification("false")
	}
	return results, nil
}

// VerifyReceipts recomputes a Merkle tree from a standalone receipt
// sequence and reports, per step, whether its receipt's leaf verifies
// under expectedRoot, without invoking any adapter.
func VerifyReceipts(receipts []Receipt, expectedRoot string) ([]ReceiptVerification, error) {
	return verify(receipts, expectedRoot)
}
