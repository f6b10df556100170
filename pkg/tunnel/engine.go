// Package tunnel runs the encrypted point-to-point tunnel: the peer
// directory, the per-peer session state machine, and the concurrent UDP
// pipeline that moves datagrams between the socket and the handshake engine.
package tunnel

import "time"

// VerdictKind classifies the outcome of decapsulating one datagram.
type VerdictKind int

const (
	// VerdictNone means the datagram was consumed with nothing to do
	// (a keepalive, or an internal state update).
	VerdictNone VerdictKind = iota

	// VerdictSendToNetwork means Payload must be transmitted to the peer.
	VerdictSendToNetwork

	// VerdictDeliverIPv4 means Payload is a decrypted IPv4 packet for the
	// local side.
	VerdictDeliverIPv4

	// VerdictDeliverIPv6 means Payload is a decrypted IPv6 packet for the
	// local side.
	VerdictDeliverIPv6

	// VerdictHandshakeComplete means a handshake just completed and the
	// session is ready to carry traffic. Payload is empty.
	VerdictHandshakeComplete
)

// String returns the verdict kind name for logs.
func (k VerdictKind) String() string {
	switch k {
	case VerdictNone:
		return "none"
	case VerdictSendToNetwork:
		return "send-to-network"
	case VerdictDeliverIPv4:
		return "deliver-ipv4"
	case VerdictDeliverIPv6:
		return "deliver-ipv6"
	case VerdictHandshakeComplete:
		return "handshake-complete"
	default:
		return "unknown"
	}
}

// Verdict is the single outcome of processing one inbound datagram.
type Verdict struct {
	Kind    VerdictKind
	Payload []byte
}

// Engine is the cryptographic core behind one peer session. Implementations
// are not safe for concurrent use; the orchestration goroutine owns each
// engine exclusively.
type Engine interface {
	// Initiate starts a handshake and returns the initiation datagram.
	Initiate() ([]byte, error)

	// Decapsulate processes one inbound datagram and returns exactly one
	// verdict. Errors leave the engine usable unless they are
	// ErrHandshakeFailed or ErrSessionExpired.
	Decapsulate(datagram []byte) (Verdict, error)

	// Encapsulate encrypts one outbound packet into a datagram. Fails with
	// ErrNotEstablished before a handshake completes and ErrSessionExpired
	// once the keys are past their lifetime.
	Encapsulate(packet []byte) ([]byte, error)

	// Tick advances timers and returns at most one datagram to transmit:
	// a handshake retry, a rekey initiation, or a keepalive. A nil datagram
	// with a nil error means nothing was due.
	Tick(now time.Time) ([]byte, error)

	// Reset discards all handshake and session state, zeroizing key material.
	Reset()
}

// EngineFactory builds an engine for a peer. The pipeline calls it once per
// session; peer is nil for inbound traffic from an unconfigured address, and
// factories may reject that with an error to have the traffic dropped.
type EngineFactory func(peer *Peer) (Engine, error)
