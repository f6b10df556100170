package noise

import (
	"crypto/ecdh"
	"encoding/binary"
	"time"

	"github.com/wirelay/wirelay/internal/constants"
	werrors "github.com/wirelay/wirelay/internal/errors"
	"github.com/wirelay/wirelay/pkg/crypto"
	"github.com/wirelay/wirelay/pkg/keys"
	"github.com/wirelay/wirelay/pkg/tunnel"
)

// Config configures an Engine for one remote peer.
type Config struct {
	// LocalStaticPrivate is the local identity private key.
	LocalStaticPrivate keys.Key

	// RemoteStatic is the peer's identity public key. Required; an engine
	// only ever talks to the one peer it was built for.
	RemoteStatic keys.Key

	// Keepalive is the persistent keepalive interval; 0 disables keepalives.
	Keepalive time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// handshakeState is the in-flight initiator side of a handshake.
type handshakeState struct {
	localIndex uint32
	ephPriv    *ecdh.PrivateKey
	kem        *crypto.MLKEMKeyPair
	initMsg    []byte
	startedAt  time.Time
	lastSent   time.Time
}

// sessionState is an established transport session.
type sessionState struct {
	send *crypto.AEAD
	recv *crypto.AEAD

	localIndex  uint32
	remoteIndex uint32
	sendCounter uint64
	replay      replayWindow

	initiator bool
	// confirmed is false on the responder side until the first
	// authenticated data message proves the initiator holds the keys.
	confirmed bool

	establishedAt time.Time
	lastSent      time.Time
	lastRecv      time.Time
}

// Engine runs the handshake and transport protocol for one peer. It
// implements tunnel.Engine and is not safe for concurrent use.
type Engine struct {
	localPriv   *ecdh.PrivateKey
	localStatic keys.Key
	remotePub   *ecdh.PublicKey

	remoteStatic keys.Key
	keepalive    time.Duration
	now          func() time.Time

	// dhStatic is X25519 of the two identity keys; it keys the initiation
	// MAC so only the configured peer pair can produce accepted initiations.
	dhStatic []byte

	hs   *handshakeState
	sess *sessionState

	// pending holds responder keys derived from an inbound initiation that
	// arrived while a confirmed session was live. It replaces sess only once
	// the peer sends an authenticated message under the new keys, so a
	// replayed initiation cannot tear down a working session.
	pending *sessionState
}

var _ tunnel.Engine = (*Engine)(nil)

// NewEngine builds an engine from the local identity and the peer's public
// key.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.RemoteStatic.IsZero() {
		return nil, werrors.ErrInvalidKeyLength
	}

	localPriv, err := crypto.NewX25519PrivateKey(cfg.LocalStaticPrivate[:])
	if err != nil {
		return nil, err
	}
	remotePub, err := crypto.ParseX25519PublicKey(cfg.RemoteStatic[:])
	if err != nil {
		return nil, err
	}
	dhStatic, err := crypto.X25519(localPriv, remotePub)
	if err != nil {
		return nil, err
	}

	var localStatic keys.Key
	copy(localStatic[:], localPriv.PublicKey().Bytes())

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Engine{
		localPriv:    localPriv,
		localStatic:  localStatic,
		remotePub:    remotePub,
		remoteStatic: cfg.RemoteStatic,
		keepalive:    cfg.Keepalive,
		now:          clock,
		dhStatic:     dhStatic,
	}, nil
}

// Initiate starts a handshake and returns the initiation datagram. Calling
// it while a handshake is already in flight resends the same initiation.
func (e *Engine) Initiate() ([]byte, error) {
	if e.hs != nil {
		e.hs.lastSent = e.now()
		return append([]byte(nil), e.hs.initMsg...), nil
	}

	localIndex, err := randomIndex()
	if err != nil {
		return nil, err
	}
	ephPair, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		return nil, err
	}
	kemPair, err := crypto.GenerateMLKEMKeyPair()
	if err != nil {
		return nil, err
	}

	msg := make([]byte, InitMessageSize)
	putHeader(msg, msgTypeInit)
	putUint32(msg[initSenderOffset:], localIndex)
	copy(msg[initStaticOffset:], e.localStatic[:])
	copy(msg[initEphOffset:], ephPair.PublicKey.Bytes())
	copy(msg[initKEMOffset:], kemPair.EncapsulationKey.Bytes())

	mac, err := e.macTag(msg[:initMACOffset])
	if err != nil {
		return nil, err
	}
	copy(msg[initMACOffset:], mac)

	now := e.now()
	e.hs = &handshakeState{
		localIndex: localIndex,
		ephPriv:    ephPair.PrivateKey,
		kem:        kemPair,
		initMsg:    msg,
		startedAt:  now,
		lastSent:   now,
	}

	return append([]byte(nil), msg...), nil
}

// Decapsulate processes one inbound datagram and returns exactly one verdict.
func (e *Engine) Decapsulate(datagram []byte) (tunnel.Verdict, error) {
	msgType, err := messageType(datagram)
	if err != nil {
		return tunnel.Verdict{}, err
	}
	switch msgType {
	case msgTypeInit:
		return e.handleInit(datagram)
	case msgTypeResponse:
		return e.handleResponse(datagram)
	default:
		return e.handleData(datagram)
	}
}

func (e *Engine) handleInit(msg []byte) (tunnel.Verdict, error) {
	if len(msg) != InitMessageSize {
		return tunnel.Verdict{}, werrors.ErrInvalidMessage
	}

	// The static key in the message must be the peer this engine serves.
	if !crypto.ConstantTimeCompare(msg[initStaticOffset:initEphOffset], e.remoteStatic[:]) {
		return tunnel.Verdict{}, werrors.ErrAuthenticationFailed
	}
	wantMAC, err := e.macTag(msg[:initMACOffset])
	if err != nil {
		return tunnel.Verdict{}, err
	}
	if !crypto.ConstantTimeCompare(msg[initMACOffset:], wantMAC) {
		return tunnel.Verdict{}, werrors.ErrAuthenticationFailed
	}

	initEph, err := crypto.ParseX25519PublicKey(msg[initEphOffset:initKEMOffset])
	if err != nil {
		return tunnel.Verdict{}, werrors.ErrInvalidMessage
	}
	initKEM, err := crypto.ParseMLKEMPublicKey(msg[initKEMOffset:initMACOffset])
	if err != nil {
		return tunnel.Verdict{}, werrors.ErrInvalidMessage
	}

	localIndex, err := randomIndex()
	if err != nil {
		return tunnel.Verdict{}, err
	}
	ephPair, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		return tunnel.Verdict{}, err
	}

	dhEE, err := crypto.X25519(ephPair.PrivateKey, initEph)
	if err != nil {
		return tunnel.Verdict{}, err
	}
	dhStaticEph, err := crypto.X25519(e.localPriv, initEph)
	if err != nil {
		return tunnel.Verdict{}, err
	}
	dhEphStatic, err := crypto.X25519(ephPair.PrivateKey, e.remotePub)
	if err != nil {
		return tunnel.Verdict{}, err
	}
	kemCT, kemShared, err := crypto.MLKEMEncapsulate(initKEM)
	if err != nil {
		return tunnel.Verdict{}, err
	}
	defer crypto.ZeroizeMultiple(dhEE, dhStaticEph, dhEphStatic, kemShared)

	resp := make([]byte, ResponseMessageSize)
	putHeader(resp, msgTypeResponse)
	putUint32(resp[respSenderOffset:], localIndex)
	putUint32(resp[respReceiverOffset:], getUint32(msg[initSenderOffset:]))
	copy(resp[respEphOffset:], ephPair.PublicKey.Bytes())
	copy(resp[respKEMOffset:], kemCT)

	transcript := crypto.TranscriptHash([]byte(constants.ProtocolName), msg, resp[:respConfirmOffset])
	master, err := crypto.DeriveKeyMultiple(constants.DomainSeparatorMaster,
		[][]byte{dhEE, dhStaticEph, dhEphStatic, kemShared, transcript}, constants.KeySize)
	if err != nil {
		return tunnel.Verdict{}, err
	}
	defer crypto.Zeroize(master)

	confirm, err := crypto.DeriveKey(constants.DomainSeparatorConfirm, master, confirmSize)
	if err != nil {
		return tunnel.Verdict{}, err
	}
	copy(resp[respConfirmOffset:], confirm)

	sess, err := newSession(master, false, localIndex, getUint32(msg[initSenderOffset:]), e.now())
	if err != nil {
		return tunnel.Verdict{}, err
	}
	if cur := e.sess; cur != nil && cur.confirmed {
		// The initiation may be a legitimate rekey or a replayed capture;
		// either way the confirmed session keeps carrying traffic until the
		// peer sends something under the new keys.
		e.pending = sess
	} else {
		e.sess = sess
		e.pending = nil
	}

	return tunnel.Verdict{Kind: tunnel.VerdictSendToNetwork, Payload: resp}, nil
}

func (e *Engine) handleResponse(msg []byte) (tunnel.Verdict, error) {
	if len(msg) != ResponseMessageSize {
		return tunnel.Verdict{}, werrors.ErrInvalidMessage
	}
	hs := e.hs
	if hs == nil {
		return tunnel.Verdict{}, werrors.ErrInvalidMessage
	}
	if getUint32(msg[respReceiverOffset:]) != hs.localIndex {
		return tunnel.Verdict{}, werrors.ErrInvalidMessage
	}

	respEph, err := crypto.ParseX25519PublicKey(msg[respEphOffset:respKEMOffset])
	if err != nil {
		return tunnel.Verdict{}, werrors.ErrInvalidMessage
	}

	dhEE, err := crypto.X25519(hs.ephPriv, respEph)
	if err != nil {
		return tunnel.Verdict{}, err
	}
	dhStaticEph, err := crypto.X25519(hs.ephPriv, e.remotePub)
	if err != nil {
		return tunnel.Verdict{}, err
	}
	dhEphStatic, err := crypto.X25519(e.localPriv, respEph)
	if err != nil {
		return tunnel.Verdict{}, err
	}
	kemShared, err := crypto.MLKEMDecapsulate(hs.kem.DecapsulationKey, msg[respKEMOffset:respConfirmOffset])
	if err != nil {
		return tunnel.Verdict{}, err
	}
	defer crypto.ZeroizeMultiple(dhEE, dhStaticEph, dhEphStatic, kemShared)

	transcript := crypto.TranscriptHash([]byte(constants.ProtocolName), hs.initMsg, msg[:respConfirmOffset])
	master, err := crypto.DeriveKeyMultiple(constants.DomainSeparatorMaster,
		[][]byte{dhEE, dhStaticEph, dhEphStatic, kemShared, transcript}, constants.KeySize)
	if err != nil {
		return tunnel.Verdict{}, err
	}
	defer crypto.Zeroize(master)

	confirm, err := crypto.DeriveKey(constants.DomainSeparatorConfirm, master, confirmSize)
	if err != nil {
		return tunnel.Verdict{}, err
	}
	if !crypto.ConstantTimeCompare(msg[respConfirmOffset:], confirm) {
		return tunnel.Verdict{}, werrors.ErrAuthenticationFailed
	}

	sess, err := newSession(master, true, hs.localIndex, getUint32(msg[respSenderOffset:]), e.now())
	if err != nil {
		return tunnel.Verdict{}, err
	}
	e.sess = sess
	e.pending = nil
	e.hs = nil

	return tunnel.Verdict{Kind: tunnel.VerdictHandshakeComplete}, nil
}

func (e *Engine) handleData(msg []byte) (tunnel.Verdict, error) {
	if len(msg) < DataOverhead {
		return tunnel.Verdict{}, werrors.ErrInvalidMessage
	}
	receiver := getUint32(msg[dataReceiverOffset:])
	sess := e.sess
	promote := false
	if sess == nil || receiver != sess.localIndex {
		if p := e.pending; p != nil && receiver == p.localIndex {
			sess, promote = p, true
		} else if e.sess == nil {
			return tunnel.Verdict{}, werrors.ErrNotEstablished
		} else {
			return tunnel.Verdict{}, werrors.ErrInvalidMessage
		}
	}
	now := e.now()
	if now.Sub(sess.establishedAt) >= constants.RejectAfterTime {
		return tunnel.Verdict{}, werrors.ErrSessionExpired
	}

	counter := binary.BigEndian.Uint64(msg[dataCounterOffset:])
	plaintext, err := sess.recv.Open(crypto.CounterNonce(counter),
		msg[dataCiphertextOffset:], msg[:dataCiphertextOffset])
	if err != nil {
		return tunnel.Verdict{}, err
	}
	if err := sess.replay.Check(counter); err != nil {
		return tunnel.Verdict{}, err
	}

	if promote {
		// The peer proved it holds the new keys; retire the old session.
		e.sess = sess
		e.pending = nil
	}

	justConfirmed := !sess.confirmed
	sess.confirmed = true
	sess.lastRecv = now

	if len(plaintext) == 0 {
		// Keepalive. On the responder side the first one doubles as key
		// confirmation.
		if justConfirmed {
			return tunnel.Verdict{Kind: tunnel.VerdictHandshakeComplete}, nil
		}
		return tunnel.Verdict{Kind: tunnel.VerdictNone}, nil
	}

	switch plaintext[0] >> 4 {
	case 4:
		return tunnel.Verdict{Kind: tunnel.VerdictDeliverIPv4, Payload: plaintext}, nil
	case 6:
		return tunnel.Verdict{Kind: tunnel.VerdictDeliverIPv6, Payload: plaintext}, nil
	default:
		return tunnel.Verdict{}, werrors.ErrInvalidMessage
	}
}

// Encapsulate encrypts one packet into a data message. An empty packet
// produces a keepalive.
func (e *Engine) Encapsulate(packet []byte) ([]byte, error) {
	sess := e.sess
	if sess == nil {
		return nil, werrors.ErrNotEstablished
	}
	now := e.now()
	if now.Sub(sess.establishedAt) >= constants.RejectAfterTime {
		return nil, werrors.ErrSessionExpired
	}
	if len(packet) > MaxPlaintextSize {
		return nil, werrors.ErrDatagramTooLarge
	}

	sess.sendCounter++
	msg := make([]byte, dataCiphertextOffset, dataCiphertextOffset+len(packet)+constants.AEADTagSize)
	putHeader(msg, msgTypeData)
	putUint32(msg[dataReceiverOffset:], sess.remoteIndex)
	binary.BigEndian.PutUint64(msg[dataCounterOffset:], sess.sendCounter)

	ciphertext, err := sess.send.Seal(crypto.CounterNonce(sess.sendCounter), packet, msg[:dataCiphertextOffset])
	if err != nil {
		return nil, err
	}
	sess.lastSent = now

	return append(msg, ciphertext...), nil
}

// Tick advances the handshake and session timers. It returns at most one
// datagram: a handshake retry, a rekey initiation, or a keepalive.
func (e *Engine) Tick(now time.Time) ([]byte, error) {
	if hs := e.hs; hs != nil {
		if now.Sub(hs.startedAt) >= constants.RejectAfterTime {
			e.hs = nil
			return nil, werrors.ErrHandshakeFailed
		}
		if now.Sub(hs.lastSent) >= constants.HandshakeRetryInterval {
			hs.lastSent = now
			return append([]byte(nil), hs.initMsg...), nil
		}
		return nil, nil
	}

	if p := e.pending; p != nil && now.Sub(p.establishedAt) >= constants.RejectAfterTime {
		e.pending = nil
	}

	sess := e.sess
	if sess == nil {
		return nil, nil
	}

	// The initiator refreshes keys well before they expire; the old session
	// keeps carrying traffic until the response installs the new one.
	if sess.initiator && now.Sub(sess.establishedAt) >= constants.RekeyAfterTime {
		return e.Initiate()
	}

	if e.keepalive > 0 &&
		now.Sub(sess.lastSent) >= e.keepalive &&
		now.Sub(sess.establishedAt) < constants.RejectAfterTime {
		return e.Encapsulate(nil)
	}

	return nil, nil
}

// Reset discards all handshake and session state.
func (e *Engine) Reset() {
	e.hs = nil
	e.sess = nil
	e.pending = nil
}

// Established reports whether the engine holds usable session keys.
func (e *Engine) Established() bool {
	return e.sess != nil
}

// macTag computes the 16-byte initiation MAC over body, keyed by the X25519
// secret of the two identity keys.
func (e *Engine) macTag(body []byte) ([]byte, error) {
	return crypto.DeriveKeyMultiple(constants.DomainSeparatorMAC, [][]byte{e.dhStatic, body}, macSize)
}

// newSession derives the directional traffic keys from a master secret and
// builds the session state for one role.
func newSession(master []byte, initiator bool, localIndex, remoteIndex uint32, now time.Time) (*sessionState, error) {
	initiatorKey, responderKey, err := crypto.DeriveTrafficKeys(master)
	if err != nil {
		return nil, err
	}
	defer crypto.ZeroizeMultiple(initiatorKey, responderKey)

	sendKey, recvKey := initiatorKey, responderKey
	if !initiator {
		sendKey, recvKey = responderKey, initiatorKey
	}
	send, err := crypto.NewAEAD(sendKey)
	if err != nil {
		return nil, err
	}
	recv, err := crypto.NewAEAD(recvKey)
	if err != nil {
		return nil, err
	}

	return &sessionState{
		send:          send,
		recv:          recv,
		localIndex:    localIndex,
		remoteIndex:   remoteIndex,
		initiator:     initiator,
		confirmed:     initiator,
		establishedAt: now,
		lastSent:      now,
		lastRecv:      now,
	}, nil
}

func randomIndex() (uint32, error) {
	b, err := crypto.SecureRandomBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}
