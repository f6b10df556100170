package tunnel

import (
	"net"
	"net/netip"
	"time"

	werrors "github.com/wirelay/wirelay/internal/errors"
	"github.com/wirelay/wirelay/pkg/keys"
	"github.com/wirelay/wirelay/pkg/wgcfg"
)

// Peer is one resolved remote peer: its identity, its network endpoint, and
// the address ranges it is allowed to carry traffic for.
type Peer struct {
	PublicKey  keys.Key
	Endpoint   *net.UDPAddr
	AllowedIPs []netip.Prefix
	Keepalive  time.Duration
}

// AllowsIP reports whether addr falls inside one of the peer's allowed
// ranges. A peer with no AllowedIPs allows nothing.
func (p *Peer) AllowsIP(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range p.AllowedIPs {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// AddrPort returns the peer's endpoint as a netip.AddrPort.
func (p *Peer) AddrPort() netip.AddrPort {
	return p.Endpoint.AddrPort()
}

// PeerDirectory indexes the configured peers by public key and by resolved
// endpoint address. It is built once at startup and read-only afterwards, so
// it needs no locking.
type PeerDirectory struct {
	ordered []*Peer
	byKey   map[keys.Key]*Peer
	byAddr  map[netip.AddrPort]*Peer
}

// NewPeerDirectory resolves the configured peers into a directory. It fails
// with ErrInvalidEndpoint when an endpoint does not resolve, ErrSyntax when
// an AllowedIPs entry is not a valid CIDR prefix, and ErrDuplicateEndpoint
// when two peers resolve to the same address.
func NewPeerDirectory(cfg *wgcfg.TunnelConfig) (*PeerDirectory, error) {
	dir := &PeerDirectory{
		byKey:  make(map[keys.Key]*Peer, len(cfg.Peers)),
		byAddr: make(map[netip.AddrPort]*Peer, len(cfg.Peers)),
	}

	for i := range cfg.Peers {
		pc := &cfg.Peers[i]

		addr, err := net.ResolveUDPAddr("udp", pc.Endpoint)
		if err != nil {
			return nil, werrors.NewConfigError("Endpoint", werrors.ErrInvalidEndpoint)
		}

		peer := &Peer{
			PublicKey: pc.PublicKey,
			Endpoint:  addr,
			Keepalive: pc.KeepaliveInterval(),
		}
		for _, cidr := range pc.AllowedIPs {
			prefix, err := netip.ParsePrefix(cidr)
			if err != nil {
				return nil, werrors.NewConfigError("AllowedIPs", werrors.ErrSyntax)
			}
			peer.AllowedIPs = append(peer.AllowedIPs, prefix.Masked())
		}

		ap := normalizeAddrPort(addr.AddrPort())
		if _, taken := dir.byAddr[ap]; taken {
			// Inbound datagrams are attributed by source address, so two
			// peers behind one endpoint cannot be told apart.
			return nil, werrors.NewConfigError("Endpoint", werrors.ErrDuplicateEndpoint)
		}

		dir.ordered = append(dir.ordered, peer)
		dir.byKey[peer.PublicKey] = peer
		dir.byAddr[ap] = peer
	}

	return dir, nil
}

// Resolve looks a peer up by public key.
func (d *PeerDirectory) Resolve(pub keys.Key) (*Peer, bool) {
	p, ok := d.byKey[pub]
	return p, ok
}

// ResolveAddr looks a peer up by its resolved endpoint address.
func (d *PeerDirectory) ResolveAddr(ap netip.AddrPort) (*Peer, bool) {
	p, ok := d.byAddr[normalizeAddrPort(ap)]
	return p, ok
}

// Peers returns the peers in configuration order. The slice is shared; do
// not modify it.
func (d *PeerDirectory) Peers() []*Peer {
	return d.ordered
}

// Len returns the number of configured peers.
func (d *PeerDirectory) Len() int {
	return len(d.ordered)
}

// normalizeAddrPort strips the IPv4-in-IPv6 mapping so the same peer is
// found whether the kernel reports 10.0.0.1 or ::ffff:10.0.0.1.
func normalizeAddrPort(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
