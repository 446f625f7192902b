// Package emit provides pluggable observability for workflow execution.
package emit

// Event is one observability event raised while a run progresses: step
// dispatch, step completion, retries, and run-level start/finish.
type Event struct {
	// RunID identifies the run that raised the event.
	RunID string

	// StepID identifies the step the event concerns. Empty for run-level
	// events (run_start, run_complete, run_error).
	StepID string

	// Msg is a short, stable event name ("step_start", "step_complete",
	// "step_error", "run_start", "run_complete").
	Msg string

	// Meta carries event-specific structured data, e.g. "latency_ms",
	// "error", "merkle_root".
	Meta map[string]interface{}
}
