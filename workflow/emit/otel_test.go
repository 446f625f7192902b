package emit

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{})
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func TestOTelEmitterEmitCreatesSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{
		RunID:  "run-001",
		StepID: "a",
		Msg:    "step_start",
		Meta:   map[string]interface{}{"attempt": 1},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "step_start" {
		t.Errorf("span name = %q, want %q", span.Name, "step_start")
	}
	attrs := attributeMap(span.Attributes)
	if got := attrs["workflow.run_id"]; got != "run-001" {
		t.Errorf("workflow.run_id = %v, want run-001", got)
	}
	if got := attrs["workflow.step_id"]; got != "a" {
		t.Errorf("workflow.step_id = %v, want a", got)
	}
	if got := attrs["attempt"]; got != int64(1) {
		t.Errorf("attempt = %v, want 1", got)
	}
	if !span.EndTime.After(span.StartTime) {
		t.Error("span was not ended")
	}
}

func TestOTelEmitterEmitWithErrorSetsStatus(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{
		RunID:  "run-001",
		StepID: "a",
		Msg:    "step_error",
		Meta:   map[string]interface{}{"error": "validation failed"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error {
		t.Errorf("status code = %v, want Error", span.Status.Code)
	}
	if span.Status.Description != "validation failed" {
		t.Errorf("status description = %q, want %q", span.Status.Description, "validation failed")
	}
	if len(span.Events) == 0 {
		t.Error("expected a recorded error event")
	}
}

func TestOTelEmitterEmitBatchCreatesMultipleSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	events := []Event{
		{RunID: "run-001", StepID: "a", Msg: "step_start"},
		{RunID: "run-001", StepID: "a", Msg: "step_complete"},
		{RunID: "run-001", StepID: "b", Msg: "step_start"},
	}
	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	for i, span := range spans {
		if !span.EndTime.After(span.StartTime) {
			t.Errorf("span[%d] was not ended", i)
		}
	}
}

func TestOTelEmitterMetadataTypeConversions(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{
		RunID: "run-001",
		Msg:   "test_types",
		Meta: map[string]interface{}{
			"string_val":  "hello",
			"int_val":     42,
			"int64_val":   int64(99),
			"float64_val": 3.14,
			"bool_val":    true,
		},
	})

	attrs := attributeMap(exporter.GetSpans()[0].Attributes)
	if attrs["string_val"] != "hello" {
		t.Errorf("string_val = %v", attrs["string_val"])
	}
	if attrs["int_val"] != int64(42) {
		t.Errorf("int_val = %v", attrs["int_val"])
	}
	if attrs["int64_val"] != int64(99) {
		t.Errorf("int64_val = %v", attrs["int64_val"])
	}
	if attrs["float64_val"] != 3.14 {
		t.Errorf("float64_val = %v", attrs["float64_val"])
	}
	if attrs["bool_val"] != true {
		t.Errorf("bool_val = %v", attrs["bool_val"])
	}
}

func TestOTelEmitterNilMetaDoesNotPanic(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{RunID: "run-001", Msg: "step_start", Meta: nil})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
}

func TestOTelEmitterFlushForcesExport(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{RunID: "run-001", Msg: "step_start"})

	if err := emitter.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(exporter.GetSpans()) != 1 {
		t.Fatalf("expected 1 span after flush, got %d", len(exporter.GetSpans()))
	}
}
