// Package constants defines protocol parameters and defaults for the wirelay
// tunnel. Values that vary per deployment (listen port, datagram size, queue
// depth) are defaults here and configuration fields at construction time.
package constants

import "time"

// Transport defaults
const (
	// DefaultListenPort is the UDP port used when the configuration does not
	// set ListenPort.
	DefaultListenPort uint16 = 51820

	// MaxDatagramSize is the largest datagram the transport will read or
	// build. Matches the conventional Ethernet MTU.
	MaxDatagramSize = 1500

	// QueueCapacity is the depth of the inbound and outbound datagram queues.
	// Enqueue blocks when a queue is full; nothing is dropped at this layer.
	QueueCapacity = 1000

	// ReceiveBackoff is how long the receiver pauses after a transient
	// socket receive error before retrying.
	ReceiveBackoff = 100 * time.Millisecond

	// HousekeepingInterval is the orchestration tick period used when a peer
	// has no persistent keepalive configured.
	HousekeepingInterval = time.Second
)

// Key sizes
const (
	// KeySize is the size of X25519 identity keys, public and private.
	KeySize = 32

	// AEADKeySize is the ChaCha20-Poly1305 key size.
	AEADKeySize = 32

	// AEADNonceSize is the ChaCha20-Poly1305 nonce size.
	AEADNonceSize = 12

	// AEADTagSize is the Poly1305 authentication tag size.
	AEADTagSize = 16
)

// Session timers
const (
	// HandshakeRetryInterval is how long an initiator waits before resending
	// an unanswered handshake initiation.
	HandshakeRetryInterval = 5 * time.Second

	// RekeyAfterTime is the session age after which an initiator starts a
	// fresh handshake while the current keys remain usable.
	RekeyAfterTime = 120 * time.Second

	// RejectAfterTime is the session age after which the current keys must
	// not be used; encapsulation fails until a new handshake completes.
	RejectAfterTime = 180 * time.Second

	// SessionIdleTimeout is how long a session may sit with no traffic in
	// either direction before the orchestration loop discards it.
	SessionIdleTimeout = 3 * RejectAfterTime
)

// Key derivation domain separators. Changing any of these is a wire-breaking
// protocol change.
const (
	// ProtocolName identifies the handshake construction.
	ProtocolName = "wirelay-noise-v1"

	// DomainSeparatorMAC keys the initiation message MAC.
	DomainSeparatorMAC = "wirelay-v1-mac"

	// DomainSeparatorMaster derives the session master secret.
	DomainSeparatorMaster = "wirelay-v1-master"

	// DomainSeparatorConfirm derives the responder's key confirmation tag.
	DomainSeparatorConfirm = "wirelay-v1-confirm"

	// DomainSeparatorTrafficInitiator derives the initiator-to-responder
	// traffic key from the master secret.
	DomainSeparatorTrafficInitiator = "wirelay-v1-traffic-initiator"

	// DomainSeparatorTrafficResponder derives the responder-to-initiator
	// traffic key from the master secret.
	DomainSeparatorTrafficResponder = "wirelay-v1-traffic-responder"
)

// ReplayWindowSize is the width of the sliding anti-replay window for data
// message counters.
const ReplayWindowSize = 64
