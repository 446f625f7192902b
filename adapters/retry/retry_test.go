package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meridianflow/workflow/workflow"
)

type countingAdapter struct {
	failures  int
	calls     int
	terminal  bool
	returnErr bool
}

func (a *countingAdapter) Manifest() workflow.AdapterManifest {
	return workflow.AdapterManifest{ID: "counting", Version: "1.0.0", StepTypes: []workflow.StepTypeDescriptor{{Type: "counting"}}}
}

func (a *countingAdapter) Validate(step workflow.Step, params workflow.Value) error { return nil }

func (a *countingAdapter) HealthCheck(ctx context.Context) error { return nil }

func (a *countingAdapter) Execute(ctx context.Context, step workflow.Step, params workflow.Value) (workflow.Receipt, error) {
	a.calls++
	if a.calls <= a.failures {
		if a.returnErr {
			return workflow.Receipt{}, &workflow.EngineError{Code: workflow.ErrCodeExecutionTimeout, Message: "timed out"}
		}
		code := workflow.ErrCodeAdapterException
		if !a.terminal {
			code = workflow.ErrCodeExecutionTimeout
		}
		return workflow.Receipt{
			StepID: step.ID,
			Status: workflow.StatusError,
			Error:  &workflow.ReceiptError{Code: string(code), Message: "fail", Retryable: !a.terminal},
		}, nil
	}
	return workflow.Receipt{StepID: step.ID, Status: workflow.StatusSuccess}, nil
}

func TestAdapterRetriesUntilSuccess(t *testing.T) {
	inner := &countingAdapter{failures: 2}
	wrapped := Wrap(inner, Policy{MaxAttempts: 5, BaseDelay: time.Millisecond})

	step := workflow.Step{ID: "a", Type: "counting"}
	receipt, err := wrapped.Execute(context.Background(), step, workflow.Value{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if receipt.Status != workflow.StatusSuccess {
		t.Fatalf("status = %v, want success", receipt.Status)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3 (2 failures + 1 success)", inner.calls)
	}
}

func TestAdapterStopsOnTerminalFailure(t *testing.T) {
	inner := &countingAdapter{failures: 5, terminal: true}
	wrapped := Wrap(inner, Policy{MaxAttempts: 5, BaseDelay: time.Millisecond})

	step := workflow.Step{ID: "a", Type: "counting"}
	receipt, err := wrapped.Execute(context.Background(), step, workflow.Value{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if receipt.Status != workflow.StatusError {
		t.Fatalf("status = %v, want error", receipt.Status)
	}
	if inner.calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on terminal failure)", inner.calls)
	}
}

func TestAdapterExhaustsMaxAttempts(t *testing.T) {
	inner := &countingAdapter{failures: 10}
	wrapped := Wrap(inner, Policy{MaxAttempts: 3, BaseDelay: time.Millisecond})

	step := workflow.Step{ID: "a", Type: "counting"}
	receipt, err := wrapped.Execute(context.Background(), step, workflow.Value{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if receipt.Status != workflow.StatusError {
		t.Fatalf("status = %v, want error after exhausting retries", receipt.Status)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want exactly MaxAttempts (3)", inner.calls)
	}
}

func TestAdapterMaxAttemptsLessThanOneDisablesRetry(t *testing.T) {
	inner := &countingAdapter{failures: 10}
	wrapped := Wrap(inner, Policy{MaxAttempts: 0})

	step := workflow.Step{ID: "a", Type: "counting"}
	_, _ = wrapped.Execute(context.Background(), step, workflow.Value{})
	if inner.calls != 1 {
		t.Fatalf("calls = %d, want 1 (MaxAttempts < 1 should behave as 1)", inner.calls)
	}
}

func TestAdapterRetriesOnEngineErrorWithRetryableCode(t *testing.T) {
	inner := &countingAdapter{failures: 1, returnErr: true}
	wrapped := Wrap(inner, Policy{MaxAttempts: 3, BaseDelay: time.Millisecond})

	step := workflow.Step{ID: "a", Type: "counting"}
	receipt, err := wrapped.Execute(context.Background(), step, workflow.Value{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if receipt.Status != workflow.StatusSuccess {
		t.Fatalf("status = %v, want success after retrying a retryable EngineError", receipt.Status)
	}
	if inner.calls != 2 {
		t.Fatalf("calls = %d, want 2", inner.calls)
	}
}

func TestAdapterCustomRetryablePredicate(t *testing.T) {
	inner := &countingAdapter{failures: 5, terminal: true}
	calledWith := 0
	wrapped := Wrap(inner, Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Retryable: func(r workflow.Receipt, err error) bool {
			calledWith++
			return true // override: retry even "terminal" failures
		},
	})

	step := workflow.Step{ID: "a", Type: "counting"}
	_, _ = wrapped.Execute(context.Background(), step, workflow.Value{})
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3 (custom predicate should force retries)", inner.calls)
	}
	if calledWith == 0 {
		t.Fatal("custom Retryable predicate was never invoked")
	}
}

func TestAdapterAbortsOnContextCancellation(t *testing.T) {
	inner := &countingAdapter{failures: 10}
	wrapped := Wrap(inner, Policy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	step := workflow.Step{ID: "a", Type: "counting"}
	_, err := wrapped.Execute(ctx, step, workflow.Value{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAdapterPassThroughMethods(t *testing.T) {
	inner := &countingAdapter{}
	wrapped := Wrap(inner, Policy{MaxAttempts: 1})

	if wrapped.Manifest().ID != "counting" {
		t.Fatal("Manifest should pass through to inner adapter")
	}
	if err := wrapped.Validate(workflow.Step{}, workflow.Value{}); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := wrapped.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
