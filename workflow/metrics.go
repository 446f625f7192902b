package workflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus instrumentation for run execution, namespaced
// "workflow_". Grounded on the teacher's PrometheusMetrics (graph/metrics.go),
// relabeled from per-node concurrency metrics to per-step/per-run ones and
// adding a run_completions_total counter for the success/failed split and a
// merkle_roots_total counter for replay verification results, which the
// teacher's single-state-machine model did not have.
type Metrics struct {
	activeSteps   prometheus.Gauge
	stepLatency   *prometheus.HistogramVec
	stepErrors    *prometheus.CounterVec
	runCompletion *prometheus.CounterVec
	merkleRoots   *prometheus.CounterVec
}

// NewMetrics creates and registers every workflow metric with registry.
// Pass nil to use prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		activeSteps: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "workflow",
			Name:      "active_steps",
			Help:      "Number of steps currently dispatched to an adapter",
		}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflow",
			Name:      "step_latency_ms",
			Help:      "Step execution duration in milliseconds, from dispatch to receipt",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
		}, []string{"step_type", "status"}),
		stepErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow",
			Name:      "step_errors_total",
			Help:      "Step failures by error taxonomy code",
		}, []string{"step_type", "code"}),
		runCompletion: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow",
			Name:      "run_completions_total",
			Help:      "Completed runs by terminal outcome",
		}, []string{"outcome"}), // outcome: success, failed
		merkleRoots: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow",
			Name:      "merkle_roots_total",
			Help:      "Runs that produced a Merkle root, by replay verification result",
		}, []string{"verified"}), // verified: true, false, not_checked
	}
}

func (m *Metrics) recordStepLatency(stepType, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepLatency.WithLabelValues(stepType, status).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) recordStepError(stepType string, code ErrCode) {
	if m == nil {
		return
	}
	m.stepErrors.WithLabelValues(stepType, string(code)).Inc()
}

func (m *Metrics) setActiveSteps(n int) {
	if m == nil {
		return
	}
	m.activeSteps.Set(float64(n))
}

func (m *Metrics) recordRunCompletion(outcome string) {
	if m == nil {
		return
	}
	m.runCompletion.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordReplayVerification(verified string) {
	if m == nil {
		return
	}
	m.merkleRoots.WithLabelValues(verified).Inc()
}
