package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/meridianflow/workflow/workflow/emit"
)

// stepResult is the outcome of one step's dispatch. A step that never ran
// because the run was aborted first has a zero-value Receipt.
type stepResult struct {
	receipt Receipt
}

// scheduler drives a stepGraph to completion, dispatching ready steps to
// the registry-owned adapters with bounded concurrency. Grounded on the
// teacher's Frontier (graph/scheduler.go): concurrent dispatch is still
// correct because commitment into the receipt store never depends on
// completion order, only on the precomputed topological slot of each
// step. The heap-based OrderKey frontier becomes, here, a plain slice
// indexed by topological position: completion timing can reorder which
// goroutine finishes first, but never which slot its result lands in.
type scheduler struct {
	graph          *stepGraph
	registry       *Registry
	concurrency    int
	defaultTimeout time.Duration
	emitter        emit.Emitter
	metrics        *Metrics
	resourcePolicy ResourcePolicy
}

func newScheduler(graph *stepGraph, registry *Registry, concurrency int, defaultTimeout time.Duration, emitter emit.Emitter, metrics *Metrics, resourcePolicy ResourcePolicy) *scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	if resourcePolicy == nil {
		resourcePolicy = permissiveResourcePolicy
	}
	return &scheduler{graph: graph, registry: registry, concurrency: concurrency, defaultTimeout: defaultTimeout, emitter: emitter, metrics: metrics, resourcePolicy: resourcePolicy}
}

// run dispatches every step in the graph, resolving references against
// prior outputs as they complete, and returns the per-step results indexed
// by the step's position in the graph's topological order. On the first
// step failure, already-dispatched work is allowed to drain but no new
// step is launched: the failing step's slot holds its error receipt, the
// slots of steps that were never launched are left as zero stepResults,
// and the first error is returned separately.
func (s *scheduler) run(ctx context.Context, runID string) ([]stepResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := len(s.graph.order)
	slotOf := make(map[string]int, n)
	for i, id := range s.graph.order {
		slotOf[id] = i
	}
	results := make([]stepResult, n)

	var mu sync.Mutex
	outputs := make(map[string]Value, n)
	done := make(map[string]bool, n)
	var firstErr error

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	var launch func(ids []string)
	var inflight int32

	dispatchOne := func(stepID string) {
		defer wg.Done()
		defer func() { <-sem }()

		step := *s.graph.byID[stepID]
		s.emitter.Emit(emit.Event{RunID: runID, StepID: stepID, Msg: "step_start"})
		mu.Lock()
		inflight++
		s.metrics.setActiveSteps(int(inflight))
		mu.Unlock()
		defer func() {
			mu.Lock()
			inflight--
			s.metrics.setActiveSteps(int(inflight))
			mu.Unlock()
		}()

		record := func(r Receipt) {
			mu.Lock()
			results[slotOf[stepID]] = stepResult{receipt: r}
			mu.Unlock()
		}

		adapter, ok := s.registry.Lookup(step.Type)
		if !ok {
			message := "no adapter registered for type " + step.Type
			record(syntheticErrorReceipt(stepID, ErrCodeNoAdapterForType, message))
			s.fail(&mu, &firstErr, cancel, stepID, &EngineError{Code: ErrCodeNoAdapterForType, StepID: stepID, Message: message, Cause: ErrNoAdapterForType})
			return
		}

		mu.Lock()
		snapshot := make(map[string]Value, len(outputs))
		for k, v := range outputs {
			snapshot[k] = v
		}
		mu.Unlock()

		resolved, rerr := resolveReferences(step.Params, snapshot)
		if rerr != nil {
			code := ErrCodeReferenceUnresolved
			if ee, ok := rerr.(*EngineError); ok {
				ee.StepID = stepID
				code = ee.Code
			}
			record(syntheticErrorReceipt(stepID, code, rerr.Error()))
			s.fail(&mu, &firstErr, cancel, stepID, rerr)
			return
		}

		if perr := s.resourcePolicy(step); perr != nil {
			message := perr.Error()
			record(syntheticErrorReceipt(stepID, ErrCodeResourceUnavailable, message))
			s.fail(&mu, &firstErr, cancel, stepID, &EngineError{Code: ErrCodeResourceUnavailable, StepID: stepID, Message: message, Cause: ErrResourceUnavailable})
			return
		}

		stepCtx := withStepContext(runCtx, runID, stepID, 0, initRunRNG(runID+":"+stepID))
		start := time.Now()
		receipt, execErr := executeStep(stepCtx, adapter, step, resolved, s.defaultTimeout)
		latency := time.Since(start)

		if execErr != nil {
			s.emitter.Emit(emit.Event{RunID: runID, StepID: stepID, Msg: "step_error", Meta: map[string]interface{}{"error": execErr.Error(), "latency_ms": latency.Milliseconds()}})
			s.metrics.recordStepLatency(step.Type, "error", latency)
			if ee, ok := execErr.(*EngineError); ok {
				s.metrics.recordStepError(step.Type, ee.Code)
			}
			record(receipt)
			s.fail(&mu, &firstErr, cancel, stepID, execErr)
			return
		}

		if receipt.Status == StatusError {
			message := "adapter returned an error receipt"
			if receipt.Error != nil {
				message = receipt.Error.Code + ": " + receipt.Error.Message
			}
			s.emitter.Emit(emit.Event{RunID: runID, StepID: stepID, Msg: "step_error", Meta: map[string]interface{}{"error": message, "latency_ms": latency.Milliseconds()}})
			s.metrics.recordStepLatency(step.Type, "error", latency)
			record(receipt)
			s.fail(&mu, &firstErr, cancel, stepID, &EngineError{Code: ErrCodeAdapterException, StepID: stepID, Message: message, Cause: ErrAdapterException})
			return
		}

		s.emitter.Emit(emit.Event{RunID: runID, StepID: stepID, Msg: "step_complete", Meta: map[string]interface{}{"latency_ms": latency.Milliseconds()}})
		s.metrics.recordStepLatency(step.Type, "success", latency)

		mu.Lock()
		results[slotOf[stepID]] = stepResult{receipt: receipt}
		outputs[stepID] = receipt.Output
		done[stepID] = true
		ready := s.graph.readyAfter(done)
		mu.Unlock()

		launch(ready)
	}

	var launchedOnce sync.Map
	launch = func(ids []string) {
		mu.Lock()
		aborted := firstErr != nil
		mu.Unlock()
		if aborted {
			return
		}
		for _, id := range ids {
			if _, already := launchedOnce.LoadOrStore(id, true); already {
				continue
			}
			wg.Add(1)
			go func(id string) {
				sem <- struct{}{}
				dispatchOne(id)
			}(id)
		}
	}

	launch(s.graph.readyAfter(nil))
	wg.Wait()

	return results, firstErr
}

func (s *scheduler) fail(mu *sync.Mutex, firstErr *error, cancel context.CancelFunc, stepID string, err error) {
	mu.Lock()
	if *firstErr == nil {
		*firstErr = err
	}
	mu.Unlock()
	cancel()
}
