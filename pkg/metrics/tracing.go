package metrics

import (
	"context"
	"sync"
	"time"
)

// Tracer is the tracing seam. Implementations can back it with
// OpenTelemetry or record spans in memory for tests.
type Tracer interface {
	// StartSpan starts a span and returns a context carrying it plus a
	// function that ends the span. Call the ender with nil on success or
	// with the error that failed the operation.
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder)
}

// SpanEnder ends a span.
type SpanEnder func(err error)

// SpanOption configures a span.
type SpanOption func(*spanConfig)

type spanConfig struct {
	attributes map[string]interface{}
}

// WithSpanAttributes attaches attributes to the span.
func WithSpanAttributes(attrs map[string]interface{}) SpanOption {
	return func(c *spanConfig) { c.attributes = attrs }
}

// Span names for tunnel operations.
const (
	SpanHandshake   = "wirelay.handshake"
	SpanDecapsulate = "wirelay.decapsulate"
)

// NoOpTracer does nothing. It is the default when tracing is not configured.
type NoOpTracer struct{}

// StartSpan returns the context unchanged and a no-op ender.
func (NoOpTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	return ctx, func(error) {}
}

// SimpleTracer records completed spans in memory, for tests and debugging.
type SimpleTracer struct {
	mu    sync.Mutex
	spans []RecordedSpan
}

// RecordedSpan is one completed span.
type RecordedSpan struct {
	Name       string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Attributes map[string]interface{}
	Error      error
}

// NewSimpleTracer creates an empty SimpleTracer.
func NewSimpleTracer() *SimpleTracer {
	return &SimpleTracer{}
}

// StartSpan starts an in-memory span.
func (t *SimpleTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	cfg := &spanConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	span := RecordedSpan{
		Name:       name,
		StartTime:  time.Now(),
		Attributes: cfg.attributes,
	}
	return ctx, func(err error) {
		span.EndTime = time.Now()
		span.Duration = span.EndTime.Sub(span.StartTime)
		span.Error = err
		t.mu.Lock()
		t.spans = append(t.spans, span)
		t.mu.Unlock()
	}
}

// Spans returns a copy of all recorded spans.
func (t *SimpleTracer) Spans() []RecordedSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]RecordedSpan, len(t.spans))
	copy(out, t.spans)
	return out
}

// Reset clears the recorded spans.
func (t *SimpleTracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = t.spans[:0]
}
