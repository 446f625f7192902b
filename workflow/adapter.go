package workflow

import (
	"context"
	"reflect"
	"sync"
)

// Adapter is the capability contract a plugin implements to execute one or
// more step types. An engine never calls into a domain (an inference
// provider, a ledger, a storage backend) directly; it only ever calls
// through this four-operation surface, so swapping or stubbing a backend
// never touches scheduling or hashing logic.
type Adapter interface {
	// Manifest declares the adapter's identity and the step types it
	// claims to support. It is called once at registration time.
	Manifest() AdapterManifest

	// Validate performs structural/semantic validation of a step's
	// resolved params ahead of Execute, returning a non-nil error if the
	// step cannot be run as declared. Validate must not perform I/O.
	Validate(step Step, resolvedParams Value) error

	// Execute runs the step to completion (or failure) and returns a
	// Receipt. ctx carries the run/step metadata described by the
	// context-key constants in this package and is canceled if the run
	// is aborted.
	Execute(ctx context.Context, step Step, resolvedParams Value) (Receipt, error)

	// HealthCheck reports whether the adapter is currently able to serve
	// Execute calls, independent of any particular step.
	HealthCheck(ctx context.Context) error
}

// Registry maps step types to the single Adapter that claims them. Step
// types are disjoint across adapters: Register rejects an attempt to
// claim a type that is already owned, mirroring the "reject on duplicate"
// policy used for receipts.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter // step type -> owning adapter
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register claims every step type declared in adapter's manifest. If any
// of them is already claimed by any adapter (including this same adapter
// from an earlier Register call), no type from this call is registered and
// an *EngineError wrapping ErrDuplicateAdapterType is returned.
func (r *Registry) Register(adapter Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	manifest := adapter.Manifest()
	for _, st := range manifest.StepTypes {
		if _, exists := r.adapters[st.Type]; exists {
			return &EngineError{
				Code:    ErrCodeNoAdapterForType,
				Message: "step type " + st.Type + " already claimed by adapter " + manifest.ID,
				Cause:   ErrDuplicateAdapterType,
			}
		}
	}
	for _, st := range manifest.StepTypes {
		r.adapters[st.Type] = adapter
	}
	return nil
}

// Lookup returns the adapter claiming stepType, if any.
func (r *Registry) Lookup(stepType string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[stepType]
	return a, ok
}

// HealthCheckAll runs HealthCheck against every distinct registered
// adapter and returns the first failure encountered, if any.
func (r *Registry) HealthCheckAll(ctx context.Context) error {
	r.mu.RLock()
	var distinct []Adapter
	for _, a := range r.adapters {
		dup := false
		for _, d := range distinct {
			t := reflect.TypeOf(a)
			if t == reflect.TypeOf(d) && t.Comparable() && a == d {
				dup = true
				break
			}
		}
		if !dup {
			distinct = append(distinct, a)
		}
	}
	r.mu.RUnlock()

	for _, a := range distinct {
		if err := a.HealthCheck(ctx); err != nil {
			return &EngineError{Code: ErrCodeAdapterException, Message: "health check failed for adapter " + a.Manifest().ID, Cause: err}
		}
	}
	return nil
}
