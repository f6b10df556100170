package metrics

import (
	"context"
	"errors"
	"testing"
)

func TestNoOpTracer(t *testing.T) {
	ctx := context.Background()
	ctx2, end := NoOpTracer{}.StartSpan(ctx, SpanHandshake)
	if ctx2 != ctx {
		t.Error("NoOpTracer should return the context unchanged")
	}
	end(nil)
	end(errors.New("double end is harmless"))
}

func TestSimpleTracerRecordsSpans(t *testing.T) {
	tracer := NewSimpleTracer()

	_, end := tracer.StartSpan(context.Background(), SpanDecapsulate,
		WithSpanAttributes(map[string]interface{}{"bytes": 100}))
	end(nil)

	_, end = tracer.StartSpan(context.Background(), SpanHandshake)
	end(errors.New("timed out"))

	spans := tracer.Spans()
	if len(spans) != 2 {
		t.Fatalf("recorded spans: %d, want 2", len(spans))
	}
	if spans[0].Name != SpanDecapsulate || spans[0].Error != nil {
		t.Errorf("first span: %+v", spans[0])
	}
	if spans[0].Attributes["bytes"] != 100 {
		t.Errorf("attributes: %v", spans[0].Attributes)
	}
	if spans[1].Name != SpanHandshake || spans[1].Error == nil {
		t.Errorf("second span: %+v", spans[1])
	}

	tracer.Reset()
	if len(tracer.Spans()) != 0 {
		t.Error("Reset should clear the recorded spans")
	}
}
