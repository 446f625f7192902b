package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
)

// contextKey is a private type for context value keys, so keys from this
// package never collide with another package's.
type contextKey string

// Context keys for the execution metadata injected around every Adapter
// call.
const (
	// RunIDKey is the context key for the run identifier.
	RunIDKey contextKey = "workflow.run_id"

	// StepIDKey is the context key for the step currently being executed.
	StepIDKey contextKey = "workflow.step_id"

	// AttemptKey is the context key for the 0-based retry attempt number.
	AttemptKey contextKey = "workflow.attempt"

	// RNGKey is the context key for a run-seeded deterministic random
	// source. Adapters that need randomness must draw from this RNG
	// rather than the global math/rand source or crypto/rand, or replay
	// of a recordable step will not reproduce its output.
	RNGKey contextKey = "workflow.rng"
)

// initRunRNG seeds a deterministic RNG from runID: the first 8 bytes of
// SHA-256(runID) become the seed, so the same run id always yields the
// same sequence and distinct run ids are, in practice, independent.
func initRunRNG(runID string) *rand.Rand {
	h := sha256.Sum256([]byte(runID))
	seed := int64(binary.BigEndian.Uint64(h[:8]))
	return rand.New(rand.NewSource(seed))
}

// withStepContext returns a context carrying the run id, step id, attempt
// number, and a deterministic RNG for one adapter dispatch.
func withStepContext(ctx context.Context, runID, stepID string, attempt int, rng *rand.Rand) context.Context {
	ctx = context.WithValue(ctx, RunIDKey, runID)
	ctx = context.WithValue(ctx, StepIDKey, stepID)
	ctx = context.WithValue(ctx, AttemptKey, attempt)
	ctx = context.WithValue(ctx, RNGKey, rng)
	return ctx
}
