package tunnel

import (
	"context"

	"github.com/wirelay/wirelay/pkg/metrics"
)

// Observer receives pipeline lifecycle and traffic events. Implementations
// must be cheap and non-blocking; the hot path calls them inline.
type Observer interface {
	SessionStarted(remote string)
	SessionReset(remote string, reason error)

	// HandshakeStarted may return a span ender that is called when the
	// handshake completes or fails.
	HandshakeStarted(ctx context.Context, remote string) (context.Context, metrics.SpanEnder)
	HandshakeCompleted(remote string)
	HandshakeFailed(remote string, reason error)

	DatagramReceived(n int)
	DatagramSent(n int)
	ReceiveError(err error)
	SendError(err error)
	DecapsulateError(remote string, err error)

	PacketDelivered(version, n int)
	PolicyDrop(remote string)
}

// NoopObserver ignores all events.
type NoopObserver struct{}

func (NoopObserver) SessionStarted(string)      {}
func (NoopObserver) SessionReset(string, error) {}
func (NoopObserver) HandshakeStarted(ctx context.Context, _ string) (context.Context, metrics.SpanEnder) {
	return ctx, func(error) {}
}
func (NoopObserver) HandshakeCompleted(string)      {}
func (NoopObserver) HandshakeFailed(string, error)  {}
func (NoopObserver) DatagramReceived(int)           {}
func (NoopObserver) DatagramSent(int)               {}
func (NoopObserver) ReceiveError(error)             {}
func (NoopObserver) SendError(error)                {}
func (NoopObserver) DecapsulateError(string, error) {}
func (NoopObserver) PacketDelivered(int, int)       {}
func (NoopObserver) PolicyDrop(string)              {}

// MetricsObserver feeds pipeline events into a collector, a logger, and a
// tracer. Any of the three may be nil-equivalent defaults from
// NewMetricsObserver.
type MetricsObserver struct {
	Collector *metrics.Collector
	Logger    *metrics.Logger
	Tracer    metrics.Tracer
}

// NewMetricsObserver builds an observer over the given collector and logger.
func NewMetricsObserver(c *metrics.Collector, l *metrics.Logger, t metrics.Tracer) *MetricsObserver {
	if c == nil {
		c = metrics.NewCollector()
	}
	if l == nil {
		l = metrics.NullLogger()
	}
	if t == nil {
		t = metrics.NoOpTracer{}
	}
	return &MetricsObserver{Collector: c, Logger: l, Tracer: t}
}

func (o *MetricsObserver) SessionStarted(remote string) {
	o.Collector.RecordSessionStart()
	o.Logger.Info("session started", metrics.Fields{"remote": remote})
}

func (o *MetricsObserver) SessionReset(remote string, reason error) {
	o.Collector.RecordSessionReset()
	o.Logger.Warn("session reset", metrics.Fields{"remote": remote, "reason": reason})
}

func (o *MetricsObserver) HandshakeStarted(ctx context.Context, remote string) (context.Context, metrics.SpanEnder) {
	o.Collector.RecordHandshakeStart()
	o.Logger.Debug("handshake started", metrics.Fields{"remote": remote})
	return o.Tracer.StartSpan(ctx, metrics.SpanHandshake,
		metrics.WithSpanAttributes(map[string]interface{}{"remote": remote}))
}

func (o *MetricsObserver) HandshakeCompleted(remote string) {
	o.Collector.RecordHandshakeComplete()
	o.Logger.Info("handshake completed", metrics.Fields{"remote": remote})
}

func (o *MetricsObserver) HandshakeFailed(remote string, reason error) {
	o.Collector.RecordHandshakeFailure()
	o.Logger.Warn("handshake failed", metrics.Fields{"remote": remote, "reason": reason})
}

func (o *MetricsObserver) DatagramReceived(n int) { o.Collector.RecordReceive(n) }
func (o *MetricsObserver) DatagramSent(n int)     { o.Collector.RecordSend(n) }

func (o *MetricsObserver) ReceiveError(err error) {
	o.Collector.RecordReceiveError()
	o.Logger.Warn("receive error", metrics.Fields{"error": err})
}

func (o *MetricsObserver) SendError(err error) {
	o.Collector.RecordSendError()
	o.Logger.Warn("send error", metrics.Fields{"error": err})
}

func (o *MetricsObserver) DecapsulateError(remote string, err error) {
	o.Collector.RecordDecapFailure()
	o.Logger.Debug("datagram rejected", metrics.Fields{"remote": remote, "error": err})
}

func (o *MetricsObserver) PacketDelivered(version, n int) {
	o.Collector.RecordDeliver(n)
	o.Logger.Debug("packet delivered", metrics.Fields{"ip_version": version, "bytes": n})
}

func (o *MetricsObserver) PolicyDrop(remote string) {
	o.Collector.RecordPolicyDrop()
	o.Logger.Debug("packet outside allowed ranges", metrics.Fields{"remote": remote})
}
