package wgcfg

import (
	"fmt"
	"strings"

	werrors "github.com/wirelay/wirelay/internal/errors"
)

// clientDNS is the resolver written into exported client configurations.
const clientDNS = "1.1.1.1"

// ExportClientConfig renders a ready-to-import configuration for a new
// client peer, using the tunnel's first configured peer as the server side.
// clientPrivateKey is the client's base64 private key and clientAddress its
// tunnel address.
func ExportClientConfig(cfg *TunnelConfig, clientPrivateKey, clientAddress string) (string, error) {
	if len(cfg.Peers) == 0 {
		return "", werrors.ErrNoPeers
	}
	server := cfg.Peers[0]

	var b strings.Builder
	fmt.Fprintf(&b, "[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", clientPrivateKey)
	fmt.Fprintf(&b, "Address = %s\n", clientAddress)
	fmt.Fprintf(&b, "DNS = %s\n", clientDNS)
	fmt.Fprintf(&b, "\n")
	fmt.Fprintf(&b, "[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", server.PublicKey)
	fmt.Fprintf(&b, "AllowedIPs = %s\n", strings.Join(server.AllowedIPs, ", "))
	fmt.Fprintf(&b, "Endpoint = %s\n", server.Endpoint)
	fmt.Fprintf(&b, "PersistentKeepalive = %d\n", server.PersistentKeepalive)

	return b.String(), nil
}
