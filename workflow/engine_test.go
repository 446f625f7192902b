package workflow

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

const linearDoc = `{
	"workflow": "linear",
	"steps": [
		{"id": "a", "type": "noop", "params": {"v": 1}},
		{"id": "b", "type": "noop", "params": {"prev": "$a.v"}, "parent_step_ids": ["a"]},
		{"id": "c", "type": "noop", "params": {"prev": "$b.prev"}, "parent_step_ids": ["b"]}
	]
}`

func TestEngineExecuteLinearWorkflow(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(newFakeAdapter("noop")); err != nil {
		t.Fatalf("register: %v", err)
	}
	engine, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := engine.Execute(context.Background(), []byte(linearDoc))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != RunStatusSuccess {
		t.Fatalf("status = %v, want success", result.Status)
	}
	if len(result.Receipts) != 3 {
		t.Fatalf("got %d receipts, want 3", len(result.Receipts))
	}
	if result.Receipts[0].StepID != "a" || result.Receipts[1].StepID != "b" || result.Receipts[2].StepID != "c" {
		t.Fatalf("receipts not in topological order: %+v", result.Receipts)
	}
}

const diamondDoc = `{
	"workflow": "diamond",
	"steps": [
		{"id": "root", "type": "noop", "params": {"v": 1}},
		{"id": "left", "type": "noop", "params": {"x": 1}, "parent_step_ids": ["root"]},
		{"id": "right", "type": "noop", "params": {"x": 2}, "parent_step_ids": ["root"]},
		{"id": "join", "type": "noop", "params": {"l": "$left.x", "r": "$right.x"}, "parent_step_ids": ["left", "right"]}
	]
}`

// diamondAdapter sleeps a random duration before returning, so completion
// order between the two parallel branches varies run to run. It uses the
// package-level math/rand source (internally lock-guarded) rather than a
// private *rand.Rand, since Execute may be called concurrently for
// sibling branches.
type diamondAdapter struct{}

func (diamondAdapter) Manifest() AdapterManifest {
	return AdapterManifest{ID: "diamond", Version: "1.0.0", StepTypes: []StepTypeDescriptor{{Type: "noop", Deterministic: true}}}
}
func (diamondAdapter) Validate(step Step, params Value) error { return nil }
func (diamondAdapter) HealthCheck(ctx context.Context) error  { return nil }
func (d diamondAdapter) Execute(ctx context.Context, step Step, params Value) (Receipt, error) {
	time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	out := NewMap()
	for _, k := range params.Keys {
		out.Set(k, params.Fields[k])
	}
	return Receipt{StepID: step.ID, Status: StatusSuccess, Output: out}, nil
}

func TestEngineDiamondMerkleRootIsOrderIndependent(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(diamondAdapter{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	engine, err := New(reg, WithConcurrency(4))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	roots := make(map[string]bool)
	for i := 0; i < 8; i++ {
		result, err := engine.ExecuteWithRunID(context.Background(), []byte(diamondDoc), "fixed-run-id")
		if err != nil {
			t.Fatalf("Execute iteration %d: %v", i, err)
		}
		roots[result.MerkleRoot] = true
	}
	if len(roots) != 1 {
		t.Fatalf("expected a single stable merkle root across runs, got %d distinct roots", len(roots))
	}
}

func TestEngineVerifyDeterminismDetectsMatch(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(newFakeAdapter("noop")); err != nil {
		t.Fatalf("register: %v", err)
	}
	engine, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	first, err := engine.ExecuteWithRunID(context.Background(), []byte(linearDoc), "run-1")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	matched, _, err := engine.VerifyDeterminism(context.Background(), []byte(linearDoc), "run-1", first.MerkleRoot)
	if err != nil {
		t.Fatalf("VerifyDeterminism: %v", err)
	}
	if !matched {
		t.Fatal("expected VerifyDeterminism to match the original merkle root")
	}
}

func TestEngineVerifyDeterminismDetectsMismatch(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(newFakeAdapter("noop")); err != nil {
		t.Fatalf("register: %v", err)
	}
	engine, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	matched, _, err := engine.VerifyDeterminism(context.Background(), []byte(linearDoc), "run-1", "sha256:not-the-real-root")
	if err != nil {
		t.Fatalf("VerifyDeterminism: %v", err)
	}
	if matched {
		t.Fatal("expected VerifyDeterminism to report a mismatch against a bogus root")
	}
}

func TestEngineReplayDoesNotInvokeAdapters(t *testing.T) {
	reg := NewRegistry()
	a := newFakeAdapter("noop")
	if err := reg.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}
	engine, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := engine.Execute(context.Background(), []byte(linearDoc))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	callsBefore := a.executions()

	verifications, err := engine.Replay(result.Receipts, result.MerkleRoot)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if a.executions() != callsBefore {
		t.Fatal("Replay must not invoke any adapter")
	}
	if len(verifications) != len(result.Receipts) {
		t.Fatalf("len(verifications) = %d, want %d", len(verifications), len(result.Receipts))
	}
	for _, v := range verifications {
		if !v.Verified {
			t.Fatalf("step %s: expected Verified = true", v.StepID)
		}
	}
}

func TestEngineReplayDetectsMismatch(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(newFakeAdapter("noop")); err != nil {
		t.Fatalf("register: %v", err)
	}
	engine, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := engine.Execute(context.Background(), []byte(linearDoc))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	verifications, err := engine.Replay(result.Receipts, "sha256:not-the-real-root")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	for _, v := range verifications {
		if v.Verified {
			t.Fatalf("step %s: expected Verified = false against a bogus root", v.StepID)
		}
	}
}

func TestEngineNoAdapterForType(t *testing.T) {
	reg := NewRegistry()
	engine, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = engine.Execute(context.Background(), []byte(linearDoc))
	if err == nil {
		t.Fatal("expected error when no adapter claims the step type")
	}
	var ee *EngineError
	if !errors.As(err, &ee) || ee.Code != ErrCodeNoAdapterForType {
		t.Fatalf("expected ErrCodeNoAdapterForType, got %v", err)
	}
}

// TestEngineNoAdapterForTypeFailsBeforeAnyStepRuns exercises a workflow
// whose FIRST step has a registered type and whose LAST step does not,
// to distinguish the required pre-flight check from lazy discovery at
// dispatch time: the earlier, valid step must never execute.
func TestEngineNoAdapterForTypeFailsBeforeAnyStepRuns(t *testing.T) {
	doc := `{
		"workflow": "partial",
		"steps": [
			{"id": "a", "type": "noop", "params": {"v": 1}},
			{"id": "b", "type": "missing", "params": {}, "parent_step_ids": ["a"]}
		]
	}`
	reg := NewRegistry()
	a := newFakeAdapter("noop")
	if err := reg.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}
	engine, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = engine.Execute(context.Background(), []byte(doc))
	if err == nil {
		t.Fatal("expected error when a downstream step's type has no adapter")
	}
	var ee *EngineError
	if !errors.As(err, &ee) || ee.Code != ErrCodeNoAdapterForType || ee.StepID != "b" {
		t.Fatalf("expected ErrCodeNoAdapterForType for step b, got %v", err)
	}
	if a.executions() != 0 {
		t.Fatal("step a must not execute when a later step's adapter is missing")
	}
}

func TestEngineResourcePolicyRejectsStep(t *testing.T) {
	reg := NewRegistry()
	a := newFakeAdapter("noop")
	if err := reg.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}
	sentinel := errors.New("no GPUs available")
	policy := func(step Step) error {
		if step.ID == "b" {
			return sentinel
		}
		return nil
	}
	engine, err := New(reg, WithResourcePolicy(policy))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := engine.Execute(context.Background(), []byte(linearDoc))
	if err == nil {
		t.Fatal("expected execution error from resource policy rejection")
	}
	var ee *EngineError
	if !errors.As(err, &ee) || ee.Code != ErrCodeResourceUnavailable || ee.StepID != "b" {
		t.Fatalf("expected ErrCodeResourceUnavailable for step b, got %v", err)
	}
	found := false
	for _, r := range result.Receipts {
		if r.StepID != "b" {
			continue
		}
		found = true
		if r.Status != StatusError || r.Error == nil || r.Error.Code != string(ErrCodeResourceUnavailable) {
			t.Fatalf("step b receipt not a synthetic ResourceUnavailable error: %+v", r)
		}
	}
	if !found {
		t.Fatal("expected a synthetic error receipt for the resource-rejected step")
	}
}

func TestEngineStepFailurePropagates(t *testing.T) {
	a := newFakeAdapter("noop")
	a.failOn["b"] = "boom"
	reg := NewRegistry()
	if err := reg.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}
	engine, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := engine.Execute(context.Background(), []byte(linearDoc))
	if err == nil {
		t.Fatal("expected execution error")
	}
	if result.Status != RunStatusError {
		t.Fatalf("status = %v, want failed", result.Status)
	}
	if result.FailedStep != "b" {
		t.Fatalf("FailedStep = %q, want b", result.FailedStep)
	}
	if len(result.Receipts) == 0 {
		t.Fatal("expected the failing step's synthetic error receipt to be appended")
	}
	failed, ok := func() (Receipt, bool) {
		for _, r := range result.Receipts {
			if r.StepID == "b" {
				return r, true
			}
		}
		return Receipt{}, false
	}()
	if !ok {
		t.Fatal("expected a receipt for the failing step b")
	}
	if failed.Status != StatusError || failed.Error == nil || failed.Error.Code == "" {
		t.Fatalf("failing step receipt not populated as a synthetic error receipt: %+v", failed)
	}
}

func TestVerifyReceiptsStandalone(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(newFakeAdapter("noop")); err != nil {
		t.Fatalf("register: %v", err)
	}
	engine, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := engine.Execute(context.Background(), []byte(linearDoc))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	verifications, err := VerifyReceipts(result.Receipts, result.MerkleRoot)
	if err != nil {
		t.Fatalf("VerifyReceipts: %v", err)
	}
	if len(verifications) != len(result.Receipts) {
		t.Fatalf("len(verifications) = %d, want %d", len(verifications), len(result.Receipts))
	}
	for _, v := range verifications {
		if !v.Verified {
			t.Fatalf("step %s: VerifyReceipts should confirm the engine's own root", v.StepID)
		}
	}
}
