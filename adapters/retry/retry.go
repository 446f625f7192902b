// Package retry provides an optional Adapter decorator that retries a
// wrapped adapter's Execute calls on retryable failures. The core engine
// itself never retries (a retryable receipt still ends a run); this
// package is how a host opts into retry semantics without touching
// scheduling or hashing logic.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/meridianflow/workflow/workflow"
)

// Policy configures exponential backoff with jitter, grounded on the
// teacher's RetryPolicy/computeBackoff (graph/policy.go).
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	// MaxAttempts <= 1 disables retries entirely.
	MaxAttempts int

	// BaseDelay is the starting backoff; it doubles with each attempt.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration

	// Retryable decides whether a given receipt/error pair should be
	// retried. If nil, an *workflow.EngineError is retried when its code's
	// Retryable method reports true, and otherwise a receipt's
	// Error.Retryable flag is used.
	Retryable func(Receipt workflow.Receipt, err error) bool
}

// Receipt is a type alias kept local so callers building a custom
// Retryable predicate don't need an extra import line for the common case.
type Receipt = workflow.Receipt

func (p Policy) retryable(r workflow.Receipt, err error) bool {
	if p.Retryable != nil {
		return p.Retryable(r, err)
	}
	if ee, ok := err.(*workflow.EngineError); ok {
		return ee.Code.Retryable()
	}
	return r.Error != nil && r.Error.Retryable
}

func (p Policy) backoff(attempt int, rng *rand.Rand) time.Duration {
	delay := p.BaseDelay * (1 << attempt)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.BaseDelay <= 0 {
		return delay
	}
	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(p.BaseDelay)))
	}
	return delay + jitter
}

// Adapter wraps an inner workflow.Adapter, retrying Execute on a
// retryable failure up to Policy.MaxAttempts times. Manifest, Validate,
// and HealthCheck pass straight through.
type Adapter struct {
	inner  workflow.Adapter
	policy Policy
}

// Wrap returns inner decorated with retry behavior per policy.
func Wrap(inner workflow.Adapter, policy Policy) *Adapter {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Adapter{inner: inner, policy: policy}
}

func (a *Adapter) Manifest() workflow.AdapterManifest { return a.inner.Manifest() }

func (a *Adapter) Validate(step workflow.Step, resolvedParams workflow.Value) error {
	return a.inner.Validate(step, resolvedParams)
}

func (a *Adapter) HealthCheck(ctx context.Context) error { return a.inner.HealthCheck(ctx) }

func (a *Adapter) Execute(ctx context.Context, step workflow.Step, resolvedParams workflow.Value) (workflow.Receipt, error) {
	rng, _ := ctx.Value(workflow.RNGKey).(*rand.Rand)

	var lastReceipt workflow.Receipt
	var lastErr error
	for attempt := 0; attempt < a.policy.MaxAttempts; attempt++ {
		receipt, err := a.inner.Execute(ctx, step, resolvedParams)
		if err == nil && receipt.Error == nil {
			return receipt, nil
		}
		lastReceipt, lastErr = receipt, err
		if !a.policy.retryable(receipt, err) || attempt == a.policy.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return lastReceipt, ctx.Err()
		case <-time.After(a.policy.backoff(attempt, rng)):
		}
	}
	return lastReceipt, lastErr
}
