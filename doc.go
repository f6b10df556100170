// Package wirelay provides an encrypted, authenticated UDP tunnel between
// peers identified by X25519 public keys.
//
// A tunnel is described by a WireGuard-style textual configuration:
//
//	[Interface]
//	PrivateKey = <base64>
//	Address = 10.0.0.1/24
//	ListenPort = 51820
//
//	[Peer]
//	PublicKey = <base64>
//	Endpoint = vpn.example.com:51820
//	AllowedIPs = 10.0.0.0/24
//	PersistentKeepalive = 25
//
// # Quick Start
//
//	cfg, _ := wgcfg.Parse(text)
//	dir, _ := tunnel.NewPeerDirectory(cfg)
//
//	p, _ := tunnel.NewPipeline(tunnel.PipelineConfig{
//		ListenPort: cfg.ListenPort,
//		Peers:      dir,
//		Sink:       mySink, // receives decrypted IP packets
//		Engines: func(peer *tunnel.Peer) (tunnel.Engine, error) {
//			if peer == nil {
//				return nil, errors.New("unknown sender")
//			}
//			return noise.NewEngine(noise.Config{
//				LocalStaticPrivate: cfg.PrivateKey,
//				RemoteStatic:       peer.PublicKey,
//				Keepalive:          peer.Keepalive,
//			})
//		},
//	})
//	p.Run(ctx)
//
// # Package Structure
//
//   - pkg/wgcfg: configuration model, parser, and client config export
//   - pkg/keys: identity key pairs and their base64 encoding
//   - pkg/noise: the hybrid X25519+ML-KEM handshake and datagram engine
//   - pkg/crypto: low-level primitives (X25519, ML-KEM, AEAD, SHAKE-256 KDF)
//   - pkg/tunnel: peer directory, per-peer session state machine, UDP pipeline
//   - pkg/metrics: structured logging, counters, and tracing hooks
//   - internal/constants: protocol parameters and defaults
//   - internal/errors: sentinel error types
//
// The handshake engine is abstracted behind the tunnel.Engine interface so
// deployments (and tests) can substitute their own session state machine.
//
// Decrypted tunnel traffic is handed to a caller-supplied tunnel.PacketSink;
// wirelay does not create or manage virtual network interfaces.
package wirelay
