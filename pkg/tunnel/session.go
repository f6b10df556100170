package tunnel

import (
	"net/netip"
	"time"

	werrors "github.com/wirelay/wirelay/internal/errors"
	"github.com/wirelay/wirelay/pkg/metrics"
)

// SessionState tracks where a peer session is in its lifecycle.
type SessionState int

const (
	// SessionIdle means no handshake has been attempted or the session was
	// reset.
	SessionIdle SessionState = iota

	// SessionHandshakeInitiated means a handshake is in flight.
	SessionHandshakeInitiated

	// SessionEstablished means the session carries traffic.
	SessionEstablished

	// SessionExpired means the keys aged out; the session must be reset
	// before it is usable again.
	SessionExpired
)

// String returns the state name for logs.
func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionHandshakeInitiated:
		return "handshake-initiated"
	case SessionEstablished:
		return "established"
	case SessionExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// PeerSession binds one remote address to an engine and tracks the session
// lifecycle. The orchestration goroutine owns it exclusively; no locking.
type PeerSession struct {
	remote netip.AddrPort
	peer   *Peer // nil for traffic from an unconfigured address
	engine Engine

	state        SessionState
	lastActivity time.Time

	// endHandshake closes the tracing span opened when the handshake
	// started. Nil outside a handshake.
	endHandshake metrics.SpanEnder
}

// NewPeerSession creates an idle session for a remote address.
func NewPeerSession(remote netip.AddrPort, peer *Peer, engine Engine) *PeerSession {
	return &PeerSession{
		remote: remote,
		peer:   peer,
		engine: engine,
		state:  SessionIdle,
	}
}

// Remote returns the session's remote address.
func (s *PeerSession) Remote() netip.AddrPort { return s.remote }

// Peer returns the configured peer, or nil.
func (s *PeerSession) Peer() *Peer { return s.peer }

// State returns the current lifecycle state.
func (s *PeerSession) State() SessionState { return s.state }

// SetSpanEnder stores the ender for the in-flight handshake span.
func (s *PeerSession) SetSpanEnder(end metrics.SpanEnder) { s.endHandshake = end }

// StartHandshake begins a handshake and returns the initiation datagram.
func (s *PeerSession) StartHandshake(now time.Time) ([]byte, error) {
	if s.state == SessionEstablished {
		return nil, werrors.ErrInvalidState
	}
	datagram, err := s.engine.Initiate()
	if err != nil {
		return nil, err
	}
	s.state = SessionHandshakeInitiated
	s.lastActivity = now
	return datagram, nil
}

// HandleDatagram feeds one inbound datagram to the engine and applies the
// resulting state transition. Expiry and handshake failure move the state;
// other errors leave it unchanged.
func (s *PeerSession) HandleDatagram(datagram []byte, now time.Time) (Verdict, error) {
	v, err := s.engine.Decapsulate(datagram)
	if err != nil {
		s.noteFailure(err)
		return Verdict{}, err
	}
	s.lastActivity = now

	switch v.Kind {
	case VerdictSendToNetwork:
		// A handshake is in progress on the responder side.
		if s.state == SessionIdle {
			s.state = SessionHandshakeInitiated
		}
	case VerdictHandshakeComplete:
		s.state = SessionEstablished
		s.closeSpan(nil)
	case VerdictDeliverIPv4, VerdictDeliverIPv6:
		// Authenticated traffic implies an established session.
		s.state = SessionEstablished
		s.closeSpan(nil)
	}
	return v, nil
}

// Encapsulate encrypts one outbound packet.
func (s *PeerSession) Encapsulate(packet []byte, now time.Time) ([]byte, error) {
	datagram, err := s.engine.Encapsulate(packet)
	if err != nil {
		s.noteFailure(err)
		return nil, err
	}
	s.lastActivity = now
	return datagram, nil
}

// Tick advances the engine timers.
func (s *PeerSession) Tick(now time.Time) ([]byte, error) {
	datagram, err := s.engine.Tick(now)
	if err != nil {
		s.noteFailure(err)
		return nil, err
	}
	if datagram != nil {
		s.lastActivity = now
	}
	return datagram, nil
}

// Reset discards all session state, returning to idle. The engine zeroizes
// its key material.
func (s *PeerSession) Reset() {
	s.engine.Reset()
	s.state = SessionIdle
}

// IdleFor reports how long the session has been without traffic.
func (s *PeerSession) IdleFor(now time.Time) time.Duration {
	if s.lastActivity.IsZero() {
		return 0
	}
	return now.Sub(s.lastActivity)
}

func (s *PeerSession) noteFailure(err error) {
	switch {
	case werrors.Is(err, werrors.ErrSessionExpired):
		s.state = SessionExpired
	case werrors.Is(err, werrors.ErrHandshakeFailed):
		s.state = SessionIdle
		s.closeSpan(err)
	}
}

func (s *PeerSession) closeSpan(err error) {
	if s.endHandshake != nil {
		s.endHandshake(err)
		s.endHandshake = nil
	}
}
