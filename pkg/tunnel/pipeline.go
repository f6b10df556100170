package tunnel

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/wirelay/wirelay/internal/constants"
	werrors "github.com/wirelay/wirelay/internal/errors"
	"github.com/wirelay/wirelay/pkg/keys"
	"github.com/wirelay/wirelay/pkg/metrics"
)

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	// ListenPort is the UDP port to bind. Ignored when Conn is set.
	ListenPort uint16

	// MaxDatagramSize bounds the receive buffer. Defaults to 1500.
	MaxDatagramSize int

	// QueueCapacity is the depth of the inbound and outbound queues.
	// Defaults to 1000. Enqueue blocks when full; nothing is dropped.
	QueueCapacity int

	// TickInterval is the housekeeping tick period. Defaults to 1s.
	TickInterval time.Duration

	// Conn, when set, is used instead of binding a socket. Tests use this.
	Conn net.PacketConn

	// Peers is the resolved peer directory. Required.
	Peers *PeerDirectory

	// Engines builds the cryptographic engine for each session. Required.
	Engines EngineFactory

	// Sink receives decrypted packets. Defaults to DiscardSink.
	Sink PacketSink

	// Observer receives lifecycle and traffic events. Defaults to
	// NoopObserver.
	Observer Observer

	// Logger is the pipeline's logger. Defaults to a silent logger.
	Logger *metrics.Logger
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.ListenPort == 0 {
		c.ListenPort = constants.DefaultListenPort
	}
	if c.MaxDatagramSize <= 0 {
		c.MaxDatagramSize = constants.MaxDatagramSize
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = constants.QueueCapacity
	}
	if c.TickInterval <= 0 {
		c.TickInterval = constants.HousekeepingInterval
	}
	if c.Sink == nil {
		c.Sink = DiscardSink
	}
	if c.Observer == nil {
		c.Observer = NoopObserver{}
	}
	if c.Logger == nil {
		c.Logger = metrics.NullLogger()
	}
	return c
}

type inboundDatagram struct {
	data []byte
	from netip.AddrPort
}

type outboundDatagram struct {
	data []byte
	to   netip.AddrPort
}

type sendRequest struct {
	peer   keys.Key
	packet []byte
	reply  chan error
}

// Pipeline moves datagrams between the UDP socket and the per-peer engines.
//
// Three goroutines cooperate: a receiver that reads the socket into the
// inbound queue, a sender that drains the outbound queue to the socket, and
// the orchestration loop that owns all session state. Both queues are
// bounded and enqueue blocks, so a slow stage applies backpressure instead
// of dropping datagrams.
type Pipeline struct {
	cfg PipelineConfig
	log *metrics.Logger
	obs Observer

	conn      net.PacketConn
	closeOnce sync.Once

	inbound  chan inboundDatagram
	outbound chan outboundDatagram
	sendReq  chan sendRequest
	done     chan struct{}

	// Session state. Owned by the orchestration goroutine.
	sessions map[netip.AddrPort]*PeerSession
	byKey    map[keys.Key]*PeerSession
}

// NewPipeline builds a pipeline. Run must be called to start it.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Peers == nil || cfg.Engines == nil {
		return nil, werrors.NewConfigError("Pipeline", werrors.ErrMissingField)
	}
	cfg = cfg.withDefaults()
	return &Pipeline{
		cfg:      cfg,
		log:      cfg.Logger.Named("pipeline"),
		obs:      cfg.Observer,
		inbound:  make(chan inboundDatagram, cfg.QueueCapacity),
		outbound: make(chan outboundDatagram, cfg.QueueCapacity),
		sendReq:  make(chan sendRequest),
		done:     make(chan struct{}),
		sessions: make(map[netip.AddrPort]*PeerSession),
		byKey:    make(map[keys.Key]*PeerSession),
	}, nil
}

// Run binds the socket and processes traffic until ctx is cancelled. It
// returns after the receiver and sender goroutines have stopped and the
// socket is closed. Run may be called once.
func (p *Pipeline) Run(ctx context.Context) error {
	conn := p.cfg.Conn
	if conn == nil {
		var err error
		conn, err = net.ListenUDP("udp", &net.UDPAddr{Port: int(p.cfg.ListenPort)})
		if err != nil {
			return werrors.NewConfigError("ListenPort", werrors.ErrBindFailed)
		}
	}
	p.conn = conn
	defer close(p.done)
	defer p.closeSocket()

	p.log.Info("pipeline started", metrics.Fields{
		"listen": conn.LocalAddr().String(),
		"peers":  p.cfg.Peers.Len(),
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.receiveLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		p.sendLoop(ctx)
	}()

	// Peers with a keepalive configured are handshaken proactively; the
	// rest wait for traffic.
	for _, peer := range p.cfg.Peers.Peers() {
		if peer.Keepalive <= 0 {
			continue
		}
		if s := p.sessionForPeer(peer); s != nil {
			p.initiate(ctx, s)
		}
	}

	p.orchestrate(ctx)

	p.closeSocket()
	wg.Wait()
	p.log.Info("pipeline stopped")
	return nil
}

// Send encrypts packet for the given peer and queues it for transmission.
// It fails with ErrNotEstablished while no session is up (a handshake is
// started as a side effect) and ErrPipelineClosed after shutdown.
func (p *Pipeline) Send(ctx context.Context, peer keys.Key, packet []byte) error {
	req := sendRequest{
		peer:   peer,
		packet: append([]byte(nil), packet...),
		reply:  make(chan error, 1),
	}
	select {
	case p.sendReq <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return werrors.ErrPipelineClosed
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return werrors.ErrPipelineClosed
	}
}

// receiveLoop reads datagrams from the socket into the inbound queue.
// Transient receive errors back off briefly; a closed socket ends the loop.
func (p *Pipeline) receiveLoop(ctx context.Context) {
	buf := make([]byte, p.cfg.MaxDatagramSize)
	for {
		n, addr, err := p.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			p.obs.ReceiveError(err)
			select {
			case <-time.After(constants.ReceiveBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		from, ok := addrPortOf(addr)
		if !ok {
			continue
		}
		p.obs.DatagramReceived(n)

		d := inboundDatagram{data: append([]byte(nil), buf[:n]...), from: from}
		select {
		case p.inbound <- d:
		case <-ctx.Done():
			return
		}
	}
}

// sendLoop drains the outbound queue to the socket. A failed send is
// counted and skipped; the loop keeps going.
func (p *Pipeline) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-p.outbound:
			if _, err := p.conn.WriteTo(d.data, net.UDPAddrFromAddrPort(d.to)); err != nil {
				p.obs.SendError(err)
				continue
			}
			p.obs.DatagramSent(len(d.data))
		}
	}
}

// orchestrate is the single goroutine that owns all session state.
func (p *Pipeline) orchestrate(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-p.inbound:
			p.handleInbound(ctx, d)
		case req := <-p.sendReq:
			req.reply <- p.handleSend(ctx, req)
		case now := <-ticker.C:
			p.handleTick(ctx, now)
		}
	}
}

func (p *Pipeline) handleInbound(ctx context.Context, d inboundDatagram) {
	s := p.sessions[d.from]
	if s == nil {
		peer, _ := p.cfg.Peers.ResolveAddr(d.from)
		engine, err := p.cfg.Engines(peer)
		if err != nil {
			p.obs.DecapsulateError(d.from.String(), err)
			return
		}
		s = NewPeerSession(d.from, peer, engine)
		p.sessions[d.from] = s
		if peer != nil {
			p.byKey[peer.PublicKey] = s
		}
		p.obs.SessionStarted(d.from.String())
	}

	v, err := s.HandleDatagram(d.data, time.Now())
	if err != nil {
		p.handleSessionError(ctx, s, err)
		return
	}

	switch v.Kind {
	case VerdictSendToNetwork:
		p.transmit(ctx, v.Payload, s.Remote())
	case VerdictHandshakeComplete:
		p.obs.HandshakeCompleted(s.Remote().String())
	case VerdictDeliverIPv4:
		p.deliver(s, v.Payload, 4)
	case VerdictDeliverIPv6:
		p.deliver(s, v.Payload, 6)
	}
}

func (p *Pipeline) handleSend(ctx context.Context, req sendRequest) error {
	s := p.byKey[req.peer]
	if s == nil {
		peer, ok := p.cfg.Peers.Resolve(req.peer)
		if !ok {
			return werrors.ErrNoPeers
		}
		s = p.sessionForPeer(peer)
		if s == nil {
			return werrors.ErrHandshakeFailed
		}
	}

	if s.State() != SessionEstablished {
		// The packet is dropped, but make sure a handshake is under way so
		// a retry will go through.
		if s.State() == SessionIdle {
			p.initiate(ctx, s)
		}
		return werrors.ErrNotEstablished
	}

	datagram, err := s.Encapsulate(req.packet, time.Now())
	if err != nil {
		p.handleSessionError(ctx, s, err)
		return err
	}
	p.transmit(ctx, datagram, s.Remote())
	return nil
}

func (p *Pipeline) handleTick(ctx context.Context, now time.Time) {
	for addr, s := range p.sessions {
		datagram, err := s.Tick(now)
		if err != nil {
			p.handleSessionError(ctx, s, err)
			continue
		}
		if datagram != nil {
			p.transmit(ctx, datagram, s.Remote())
		}

		if s.IdleFor(now) >= constants.SessionIdleTimeout {
			p.log.Debug("discarding idle session", metrics.Fields{"remote": addr.String()})
			s.Reset()
			delete(p.sessions, addr)
			if peer := s.Peer(); peer != nil {
				delete(p.byKey, peer.PublicKey)
			}
		}
	}
}

// deliver hands a decrypted packet to the sink if its source address is
// inside the peer's allowed ranges.
func (p *Pipeline) deliver(s *PeerSession, packet []byte, version int) {
	peer := s.Peer()
	src, ok := packetSource(packet, version)
	if peer == nil || !ok || !peer.AllowsIP(src) {
		p.obs.PolicyDrop(s.Remote().String())
		return
	}
	p.obs.PacketDelivered(version, len(packet))
	p.cfg.Sink.Deliver(packet, version)
}

// handleSessionError applies the pipeline's recovery policy: expired
// sessions are reset (and re-handshaken for keepalive peers), failed
// handshakes are reported, everything else is counted and ignored.
func (p *Pipeline) handleSessionError(ctx context.Context, s *PeerSession, err error) {
	remote := s.Remote().String()
	switch {
	case werrors.Is(err, werrors.ErrSessionExpired):
		p.obs.SessionReset(remote, err)
		s.Reset()
		if peer := s.Peer(); peer != nil && peer.Keepalive > 0 {
			p.initiate(ctx, s)
		}
	case werrors.Is(err, werrors.ErrHandshakeFailed):
		p.obs.HandshakeFailed(remote, err)
		if peer := s.Peer(); peer != nil && peer.Keepalive > 0 {
			p.initiate(ctx, s)
		}
	default:
		p.obs.DecapsulateError(remote, err)
	}
}

// initiate starts a handshake on a session and transmits the initiation.
func (p *Pipeline) initiate(ctx context.Context, s *PeerSession) {
	remote := s.Remote().String()
	_, end := p.obs.HandshakeStarted(ctx, remote)
	s.SetSpanEnder(end)

	datagram, err := s.StartHandshake(time.Now())
	if err != nil {
		end(err)
		s.SetSpanEnder(nil)
		p.obs.HandshakeFailed(remote, err)
		return
	}
	p.transmit(ctx, datagram, s.Remote())
}

// sessionForPeer returns the session for a configured peer, creating it if
// needed.
func (p *Pipeline) sessionForPeer(peer *Peer) *PeerSession {
	remote := normalizeAddrPort(peer.AddrPort())
	if s := p.sessions[remote]; s != nil {
		return s
	}
	engine, err := p.cfg.Engines(peer)
	if err != nil {
		p.log.Error("engine construction failed", metrics.Fields{
			"peer":  peer.PublicKey.String(),
			"error": err,
		})
		return nil
	}
	s := NewPeerSession(remote, peer, engine)
	p.sessions[remote] = s
	p.byKey[peer.PublicKey] = s
	p.obs.SessionStarted(remote.String())
	return s
}

func (p *Pipeline) transmit(ctx context.Context, data []byte, to netip.AddrPort) {
	select {
	case p.outbound <- outboundDatagram{data: data, to: to}:
	case <-ctx.Done():
	}
}

// closeSocket closes the socket exactly once. It both releases the port and
// unblocks the receiver's pending ReadFrom.
func (p *Pipeline) closeSocket() {
	p.closeOnce.Do(func() {
		if p.conn != nil {
			p.conn.Close()
		}
	})
}

func addrPortOf(addr net.Addr) (netip.AddrPort, bool) {
	if ua, ok := addr.(*net.UDPAddr); ok {
		return normalizeAddrPort(ua.AddrPort()), true
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return netip.AddrPort{}, false
	}
	return normalizeAddrPort(ap), true
}

// packetSource extracts the source IP of a decrypted packet.
func packetSource(packet []byte, version int) (netip.Addr, bool) {
	switch version {
	case 4:
		if len(packet) < 20 {
			return netip.Addr{}, false
		}
		return netip.AddrFrom4([4]byte(packet[12:16])), true
	case 6:
		if len(packet) < 40 {
			return netip.Addr{}, false
		}
		return netip.AddrFrom16([16]byte(packet[8:24])), true
	default:
		return netip.Addr{}, false
	}
}
