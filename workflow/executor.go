package workflow

import (
	"context"
	"fmt"
	"time"
)

// defaultStepTimeout is used when neither the step nor the engine
// configures one explicitly.
const defaultStepTimeout = 30 * time.Second

// stepTimeout resolves the effective timeout for a step by precedence:
// the step's own resource_requirements.timeout_ms, then the engine's
// configured default, then the package default. Grounded on the teacher's
// getNodeTimeout precedence (graph/timeout.go), generalized to a third,
// package-level fallback since this engine has no "unlimited" mode.
func stepTimeout(step Step, engineDefault time.Duration) time.Duration {
	if step.ResourceRequirements != nil && step.ResourceRequirements.TimeoutMs > 0 {
		return time.Duration(step.ResourceRequirements.TimeoutMs) * time.Millisecond
	}
	if engineDefault > 0 {
		return engineDefault
	}
	return defaultStepTimeout
}

// syntheticErrorReceipt builds the error receipt the closed error taxonomy
// (§7) requires to be appended for a failing step: every failure surfaces
// as a receipt with status: error and a populated error object, not merely
// as a Go error halting the run.
func syntheticErrorReceipt(stepID string, code ErrCode, message string) Receipt {
	return Receipt{
		StepID: stepID,
		Status: StatusError,
		Error: &ReceiptError{
			Code:      string(code),
			Message:   message,
			Retryable: code.Retryable(),
		},
	}
}

// executeStep dispatches one step to adapter, enforcing its timeout and
// turning adapter-side failures (panics, schema-invalid receipts, context
// deadlines) into the closed error taxonomy. A non-nil error here is
// always terminal for the run; the caller does not retry. On every failure
// path the returned Receipt is a populated synthetic error receipt (not a
// zero value), so the caller can still append it to the receipt store.
func executeStep(ctx context.Context, adapter Adapter, step Step, resolvedParams Value, engineDefaultTimeout time.Duration) (receipt Receipt, err error) {
	timeout := stepTimeout(step, engineDefaultTimeout)
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			message := fmt.Sprintf("adapter panicked: %v", r)
			err = &EngineError{Code: ErrCodeAdapterException, StepID: step.ID, Message: message, Cause: ErrAdapterException}
			receipt = syntheticErrorReceipt(step.ID, ErrCodeAdapterException, message)
		}
	}()

	if verr := adapter.Validate(step, resolvedParams); verr != nil {
		return syntheticErrorReceipt(step.ID, ErrCodeStepValidationFailed, verr.Error()),
			&EngineError{Code: ErrCodeStepValidationFailed, StepID: step.ID, Message: verr.Error(), Cause: verr}
	}

	execReceipt, execErr := adapter.Execute(stepCtx, step, resolvedParams)
	if stepCtx.Err() == context.DeadlineExceeded {
		message := fmt.Sprintf("step %s exceeded timeout of %v", step.ID, timeout)
		return syntheticErrorReceipt(step.ID, ErrCodeExecutionTimeout, message),
			&EngineError{Code: ErrCodeExecutionTimeout, StepID: step.ID, Message: message, Cause: ErrExecutionTimeout}
	}
	if execErr != nil {
		return syntheticErrorReceipt(step.ID, ErrCodeAdapterException, execErr.Error()),
			&EngineError{Code: ErrCodeAdapterException, StepID: step.ID, Message: execErr.Error(), Cause: execErr}
	}

	if execReceipt.StepID == "" {
		execReceipt.StepID = step.ID
	}
	receiptJSON, merr := marshalForSchema(execReceipt)
	if merr != nil {
		return syntheticErrorReceipt(step.ID, ErrCodeInvalidReceipt, merr.Error()),
			&EngineError{Code: ErrCodeInvalidReceipt, StepID: step.ID, Message: merr.Error(), Cause: merr}
	}
	if serr := ValidateReceiptSchema(receiptJSON); serr != nil {
		if ee, ok := serr.(*EngineError); ok {
			ee.StepID = step.ID
			return syntheticErrorReceipt(step.ID, ee.Code, ee.Message), ee
		}
		return syntheticErrorReceipt(step.ID, ErrCodeInvalidReceipt, serr.Error()),
			&EngineError{Code: ErrCodeInvalidReceipt, StepID: step.ID, Message: serr.Error(), Cause: serr}
	}

	return execReceipt, nil
}
