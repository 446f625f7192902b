package workflow

import (
	"time"

	"github.com/meridianflow/workflow/workflow/emit"
)

// Option configures an Engine. Grounded on the teacher's functional
// options pattern (graph/options.go): chainable, self-documenting, and
// safe to omit entirely for sane defaults.
type Option func(*engineConfig) error

// ResourcePolicy admits or rejects a step's declared resource_requirements
// before it is dispatched to its adapter (spec §4.G step 4). A nil
// ResourceRequirements (the common case) must be admitted.
type ResourcePolicy func(step Step) error

// permissiveResourcePolicy admits every step regardless of its declared
// resource_requirements; hosts that care about RAM/GPU/qubit/gas budgets
// supply a stricter policy via WithResourcePolicy.
func permissiveResourcePolicy(Step) error { return nil }

type engineConfig struct {
	concurrency    int
	defaultTimeout time.Duration
	emitter        emit.Emitter
	metrics        *Metrics
	resourcePolicy ResourcePolicy
}

func defaultEngineConfig() *engineConfig {
	return &engineConfig{
		concurrency:    8,
		defaultTimeout: 0,
		emitter:        emit.NewNullEmitter(),
		resourcePolicy: permissiveResourcePolicy,
	}
}

// WithConcurrency caps the number of steps dispatched to adapters at once.
// Default: 8.
func WithConcurrency(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 1 {
			return &EngineError{Code: ErrCodeWorkflowSchemaInvalid, Message: "concurrency must be >= 1"}
		}
		cfg.concurrency = n
		return nil
	}
}

// WithDefaultStepTimeout sets the timeout applied to a step when it
// declares no resource_requirements.timeout_ms of its own. If unset, the
// package default of 30s applies.
func WithDefaultStepTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.defaultTimeout = d
		return nil
	}
}

// WithEmitter installs an observability sink. Default: emit.NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *engineConfig) error {
		cfg.emitter = e
		return nil
	}
}

// WithMetrics installs a Prometheus-backed metrics recorder. Default: nil
// (metrics disabled).
func WithMetrics(m *Metrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = m
		return nil
	}
}

// WithResourcePolicy installs the admission check run against every step's
// resource_requirements before dispatch (spec §4.G step 4, §7
// ResourceUnavailable). Default: a permissive policy that admits every
// step. A policy returning a non-nil error rejects the step with a
// synthetic ResourceUnavailable receipt before its adapter is invoked.
func WithResourcePolicy(p ResourcePolicy) Option {
	return func(cfg *engineConfig) error {
		if p == nil {
			return &EngineError{Code: ErrCodeWorkflowSchemaInvalid, Message: "resource policy must not be nil"}
		}
		cfg.resourcePolicy = p
		return nil
	}
}
