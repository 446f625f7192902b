package emit

import "context"

// Emitter receives observability events from a run. Implementations must
// not block execution for long and must not panic.
type Emitter interface {
	// Emit sends a single event.
	Emit(event Event)

	// EmitBatch sends multiple events, preserving their relative order.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until any buffered events have been delivered.
	Flush(ctx context.Context) error
}
