package tunnel

import (
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	werrors "github.com/wirelay/wirelay/internal/errors"
	"github.com/wirelay/wirelay/pkg/metrics"
	"github.com/wirelay/wirelay/pkg/wgcfg"
)

type cpacket struct {
	data []byte
	from net.Addr
}

// scriptConn is an in-memory net.PacketConn. Reads drain a seeded inbox;
// writes are counted and optionally slowed down.
type scriptConn struct {
	inbox      chan cpacket
	writeDelay time.Duration
	writes     atomic.Int64

	closed    chan struct{}
	closeOnce sync.Once
}

func newScriptConn() *scriptConn {
	return &scriptConn{
		inbox:  make(chan cpacket, 4096),
		closed: make(chan struct{}),
	}
}

func (c *scriptConn) push(data []byte, from net.Addr) {
	c.inbox <- cpacket{data: data, from: from}
}

func (c *scriptConn) ReadFrom(b []byte) (int, net.Addr, error) {
	select {
	case <-c.closed:
		return 0, nil, net.ErrClosed
	case p := <-c.inbox:
		return copy(b, p.data), p.from, nil
	}
}

func (c *scriptConn) WriteTo(b []byte, _ net.Addr) (int, error) {
	if c.writeDelay > 0 {
		time.Sleep(c.writeDelay)
	}
	c.writes.Add(1)
	return len(b), nil
}

func (c *scriptConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *scriptConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 51820}
}

func (c *scriptConn) SetDeadline(time.Time) error      { return nil }
func (c *scriptConn) SetReadDeadline(time.Time) error  { return nil }
func (c *scriptConn) SetWriteDeadline(time.Time) error { return nil }

// echoEngine turns every inbound datagram into an identical outbound one.
type echoEngine struct{}

func (echoEngine) Initiate() ([]byte, error) { return []byte{0x01}, nil }
func (echoEngine) Decapsulate(d []byte) (Verdict, error) {
	return Verdict{Kind: VerdictSendToNetwork, Payload: append([]byte(nil), d...)}, nil
}
func (echoEngine) Encapsulate(p []byte) ([]byte, error) { return append([]byte(nil), p...), nil }
func (echoEngine) Tick(time.Time) ([]byte, error)       { return nil, nil }
func (echoEngine) Reset()                               {}

func emptyDirectory(t *testing.T) *PeerDirectory {
	t.Helper()
	dir, err := NewPeerDirectory(&wgcfg.TunnelConfig{})
	if err != nil {
		t.Fatalf("NewPeerDirectory: %v", err)
	}
	return dir
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startPipeline(t *testing.T, p *Pipeline) (cancel context.CancelFunc, done chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done = make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("pipeline did not stop")
		}
	})
	return cancel, done
}

// Floods the pipeline with more datagrams than the queues hold while the
// writer is slow. The bounded queues must apply backpressure and every
// datagram must eventually be written; none may be dropped.
func TestPipelineBackpressure(t *testing.T) {
	const datagrams = 1500

	conn := newScriptConn()
	conn.writeDelay = time.Millisecond

	from := &net.UDPAddr{IP: net.IPv4(203, 0, 113, 5), Port: 4000}
	for i := 0; i < datagrams; i++ {
		conn.push([]byte{0x04, byte(i), byte(i >> 8)}, from)
	}

	p, err := NewPipeline(PipelineConfig{
		Conn:         conn,
		Peers:        emptyDirectory(t),
		Engines:      func(*Peer) (Engine, error) { return echoEngine{}, nil },
		TickInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	startPipeline(t, p)

	waitFor(t, 30*time.Second, "all datagrams to be written", func() bool {
		return conn.writes.Load() == datagrams
	})
}

func TestPipelineRejectsUnknownSender(t *testing.T) {
	conn := newScriptConn()
	from := &net.UDPAddr{IP: net.IPv4(203, 0, 113, 9), Port: 4001}
	for i := 0; i < 3; i++ {
		conn.push([]byte{0x01, 0, 0, 0}, from)
	}

	obs := NewMetricsObserver(nil, nil, nil)
	p, err := NewPipeline(PipelineConfig{
		Conn:     conn,
		Peers:    emptyDirectory(t),
		Observer: obs,
		Engines: func(peer *Peer) (Engine, error) {
			if peer == nil {
				return nil, werrors.ErrHandshakeFailed
			}
			return echoEngine{}, nil
		},
		TickInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	startPipeline(t, p)

	waitFor(t, 5*time.Second, "unknown senders to be rejected", func() bool {
		return obs.Collector.Snapshot().DecapFailures == 3
	})
	if got := conn.writes.Load(); got != 0 {
		t.Errorf("nothing should be written for rejected senders, wrote %d", got)
	}
}

func TestPipelineSendLifecycle(t *testing.T) {
	peerAddr := &net.UDPAddr{IP: net.IPv4(192, 0, 2, 7), Port: 51820}
	cfg := &wgcfg.TunnelConfig{
		Peers: []wgcfg.PeerConfig{{PublicKey: dirKey(1), Endpoint: "192.0.2.7:51820"}},
	}
	dir, err := NewPeerDirectory(cfg)
	if err != nil {
		t.Fatalf("NewPeerDirectory: %v", err)
	}

	conn := newScriptConn()
	eng := &fakeEngine{
		initOut:  []byte{0x01},
		decapV:   Verdict{Kind: VerdictHandshakeComplete},
		encapOut: []byte{0x04, 0xAA},
	}
	p, err := NewPipeline(PipelineConfig{
		Conn:         conn,
		Peers:        dir,
		Engines:      func(*Peer) (Engine, error) { return eng, nil },
		TickInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	startPipeline(t, p)

	ctx := context.Background()

	// No session yet: the send fails but starts a handshake.
	if err := p.Send(ctx, dirKey(1), []byte{0x45}); !werrors.Is(err, werrors.ErrNotEstablished) {
		t.Fatalf("expected ErrNotEstablished, got %v", err)
	}
	waitFor(t, 5*time.Second, "the initiation to be written", func() bool {
		return conn.writes.Load() >= 1
	})

	// The peer completes the handshake.
	conn.push([]byte{0x02, 0, 0, 0}, peerAddr)
	waitFor(t, 5*time.Second, "the session to establish", func() bool {
		return p.Send(ctx, dirKey(1), []byte{0x45}) == nil
	})

	waitFor(t, 5*time.Second, "the data message to be written", func() bool {
		return conn.writes.Load() >= 2
	})
}

func TestPipelineSendUnknownPeer(t *testing.T) {
	conn := newScriptConn()
	p, err := NewPipeline(PipelineConfig{
		Conn:         conn,
		Peers:        emptyDirectory(t),
		Engines:      func(*Peer) (Engine, error) { return echoEngine{}, nil },
		TickInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	startPipeline(t, p)

	if err := p.Send(context.Background(), dirKey(9), []byte{0x45}); !werrors.Is(err, werrors.ErrNoPeers) {
		t.Errorf("expected ErrNoPeers, got %v", err)
	}
}

func TestPipelineShutdown(t *testing.T) {
	var logs bytes.Buffer
	conn := newScriptConn()
	p, err := NewPipeline(PipelineConfig{
		Conn:         conn,
		Peers:        emptyDirectory(t),
		Engines:      func(*Peer) (Engine, error) { return echoEngine{}, nil },
		Logger:       metrics.TestLogger(&logs),
		TickInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	cancel, done := startPipeline(t, p)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	// The socket is closed and sends are refused.
	select {
	case <-conn.closed:
	default:
		t.Error("socket left open after shutdown")
	}
	if err := p.Send(context.Background(), dirKey(1), []byte{0x45}); !werrors.Is(err, werrors.ErrPipelineClosed) {
		t.Errorf("expected ErrPipelineClosed, got %v", err)
	}
	if !strings.Contains(logs.String(), "pipeline stopped") {
		t.Errorf("shutdown was not logged:\n%s", logs.String())
	}
}

func TestNewPipelineValidation(t *testing.T) {
	if _, err := NewPipeline(PipelineConfig{}); !werrors.Is(err, werrors.ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
}
