// Package wgcfg parses and renders the WireGuard-style textual tunnel
// configuration: an [Interface] section describing the local identity
// followed by any number of [Peer] sections.
package wgcfg

import (
	"time"

	"github.com/wirelay/wirelay/internal/constants"
	"github.com/wirelay/wirelay/pkg/keys"
)

// TunnelConfig is the parsed configuration for one tunnel.
type TunnelConfig struct {
	// PrivateKey is the local identity key, decoded from base64.
	PrivateKey keys.Key

	// Address is the local tunnel address. A /prefix suffix in the textual
	// form is discarded for the local identity.
	Address string

	// ListenPort is the UDP port to bind; defaults to 51820.
	ListenPort uint16

	// Peers holds the configured peers in declaration order.
	Peers []PeerConfig
}

// PeerConfig describes one remote peer.
type PeerConfig struct {
	// PublicKey is the peer's identity, decoded from base64. Unique within
	// a TunnelConfig.
	PublicKey keys.Key

	// Endpoint is the peer's network address as host:port.
	Endpoint string

	// AllowedIPs holds the CIDR ranges the peer may carry traffic for.
	// Syntactically split and trimmed only; not validated here.
	AllowedIPs []string

	// PersistentKeepalive is the keepalive interval in seconds; 0 disables.
	PersistentKeepalive uint16
}

// KeepaliveInterval returns the keepalive as a duration, 0 when disabled.
func (p *PeerConfig) KeepaliveInterval() time.Duration {
	return time.Duration(p.PersistentKeepalive) * time.Second
}

// DefaultListenPort is the port used when the configuration omits ListenPort.
const DefaultListenPort = constants.DefaultListenPort
