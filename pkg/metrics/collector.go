package metrics

import "sync/atomic"

// Collector accumulates tunnel counters with atomic operations. All methods
// are safe for concurrent use; the zero value is ready to use.
type Collector struct {
	datagramsReceived atomic.Uint64
	datagramsSent     atomic.Uint64
	bytesReceived     atomic.Uint64
	bytesSent         atomic.Uint64

	receiveErrors atomic.Uint64
	sendErrors    atomic.Uint64
	decapFailures atomic.Uint64

	packetsDelivered atomic.Uint64
	bytesDelivered   atomic.Uint64
	policyDrops      atomic.Uint64

	handshakesStarted   atomic.Uint64
	handshakesCompleted atomic.Uint64
	handshakesFailed    atomic.Uint64

	sessionsStarted atomic.Uint64
	sessionsReset   atomic.Uint64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// RecordReceive counts one inbound datagram of n bytes.
func (c *Collector) RecordReceive(n int) {
	c.datagramsReceived.Add(1)
	c.bytesReceived.Add(uint64(n))
}

// RecordSend counts one outbound datagram of n bytes.
func (c *Collector) RecordSend(n int) {
	c.datagramsSent.Add(1)
	c.bytesSent.Add(uint64(n))
}

// RecordReceiveError counts a socket receive failure.
func (c *Collector) RecordReceiveError() { c.receiveErrors.Add(1) }

// RecordSendError counts a socket send failure.
func (c *Collector) RecordSendError() { c.sendErrors.Add(1) }

// RecordDecapFailure counts a datagram the engine rejected.
func (c *Collector) RecordDecapFailure() { c.decapFailures.Add(1) }

// RecordDeliver counts one decrypted packet handed to the local side.
func (c *Collector) RecordDeliver(n int) {
	c.packetsDelivered.Add(1)
	c.bytesDelivered.Add(uint64(n))
}

// RecordPolicyDrop counts a decrypted packet outside the peer's allowed
// ranges.
func (c *Collector) RecordPolicyDrop() { c.policyDrops.Add(1) }

// RecordHandshakeStart counts a handshake initiation.
func (c *Collector) RecordHandshakeStart() { c.handshakesStarted.Add(1) }

// RecordHandshakeComplete counts a completed handshake.
func (c *Collector) RecordHandshakeComplete() { c.handshakesCompleted.Add(1) }

// RecordHandshakeFailure counts a handshake that timed out or was rejected.
func (c *Collector) RecordHandshakeFailure() { c.handshakesFailed.Add(1) }

// RecordSessionStart counts a new peer session.
func (c *Collector) RecordSessionStart() { c.sessionsStarted.Add(1) }

// RecordSessionReset counts a session torn down for recovery.
func (c *Collector) RecordSessionReset() { c.sessionsReset.Add(1) }

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	DatagramsReceived uint64
	DatagramsSent     uint64
	BytesReceived     uint64
	BytesSent         uint64

	ReceiveErrors uint64
	SendErrors    uint64
	DecapFailures uint64

	PacketsDelivered uint64
	BytesDelivered   uint64
	PolicyDrops      uint64

	HandshakesStarted   uint64
	HandshakesCompleted uint64
	HandshakesFailed    uint64

	SessionsStarted uint64
	SessionsReset   uint64
}

// Snapshot returns a copy of the current counter values.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		DatagramsReceived: c.datagramsReceived.Load(),
		DatagramsSent:     c.datagramsSent.Load(),
		BytesReceived:     c.bytesReceived.Load(),
		BytesSent:         c.bytesSent.Load(),

		ReceiveErrors: c.receiveErrors.Load(),
		SendErrors:    c.sendErrors.Load(),
		DecapFailures: c.decapFailures.Load(),

		PacketsDelivered: c.packetsDelivered.Load(),
		BytesDelivered:   c.bytesDelivered.Load(),
		PolicyDrops:      c.policyDrops.Load(),

		HandshakesStarted:   c.handshakesStarted.Load(),
		HandshakesCompleted: c.handshakesCompleted.Load(),
		HandshakesFailed:    c.handshakesFailed.Load(),

		SessionsStarted: c.sessionsStarted.Load(),
		SessionsReset:   c.sessionsReset.Load(),
	}
}

// Fields renders the snapshot as log fields.
func (s Snapshot) Fields() Fields {
	return Fields{
		"rx_datagrams":         s.DatagramsReceived,
		"tx_datagrams":         s.DatagramsSent,
		"rx_bytes":             s.BytesReceived,
		"tx_bytes":             s.BytesSent,
		"rx_errors":            s.ReceiveErrors,
		"tx_errors":            s.SendErrors,
		"decap_failures":       s.DecapFailures,
		"packets_delivered":    s.PacketsDelivered,
		"policy_drops":         s.PolicyDrops,
		"handshakes_started":   s.HandshakesStarted,
		"handshakes_completed": s.HandshakesCompleted,
		"handshakes_failed":    s.HandshakesFailed,
		"sessions_started":     s.SessionsStarted,
		"sessions_reset":       s.SessionsReset,
	}
}
