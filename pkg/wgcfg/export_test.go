package wgcfg

import (
	"strings"
	"testing"

	werrors "github.com/wirelay/wirelay/internal/errors"
)

func TestExportClientConfig(t *testing.T) {
	cfg := &TunnelConfig{
		PrivateKey: testKey(1),
		Address:    "10.0.0.1",
		Peers: []PeerConfig{{
			PublicKey:           testKey(2),
			Endpoint:            "192.0.2.10:51820",
			AllowedIPs:          []string{"0.0.0.0/0", "::/0"},
			PersistentKeepalive: 25,
		}},
	}

	out, err := ExportClientConfig(cfg, "CLIENTKEY", "10.0.0.9/32")
	if err != nil {
		t.Fatalf("ExportClientConfig: %v", err)
	}

	want := []string{
		"[Interface]",
		"PrivateKey = CLIENTKEY",
		"Address = 10.0.0.9/32",
		"DNS = 1.1.1.1",
		"[Peer]",
		"PublicKey = " + testKey(2).String(),
		"AllowedIPs = 0.0.0.0/0, ::/0",
		"Endpoint = 192.0.2.10:51820",
		"PersistentKeepalive = 25",
	}
	for _, line := range want {
		if !strings.Contains(out, line+"\n") {
			t.Errorf("missing line %q in:\n%s", line, out)
		}
	}

	// The interface and peer sections must be separated by a blank line so
	// the rendered text reads as two sections.
	if !strings.Contains(out, "\n\n[Peer]") {
		t.Errorf("no blank line before [Peer]:\n%s", out)
	}
}

func TestExportClientConfigNoPeers(t *testing.T) {
	cfg := &TunnelConfig{PrivateKey: testKey(1), Address: "10.0.0.1"}
	if _, err := ExportClientConfig(cfg, "k", "a"); !werrors.Is(err, werrors.ErrNoPeers) {
		t.Errorf("expected ErrNoPeers, got %v", err)
	}
}

func TestExportClientConfigUsesFirstPeer(t *testing.T) {
	cfg := &TunnelConfig{
		PrivateKey: testKey(1),
		Address:    "10.0.0.1",
		Peers: []PeerConfig{
			{PublicKey: testKey(2), Endpoint: "first:1"},
			{PublicKey: testKey(3), Endpoint: "second:2"},
		},
	}
	out, err := ExportClientConfig(cfg, "k", "a")
	if err != nil {
		t.Fatalf("ExportClientConfig: %v", err)
	}
	if !strings.Contains(out, "Endpoint = first:1") {
		t.Errorf("expected first peer endpoint:\n%s", out)
	}
	if strings.Contains(out, "second:2") {
		t.Errorf("second peer leaked into export:\n%s", out)
	}
}
