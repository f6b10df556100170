package wgcfg

import (
	"strconv"
	"strings"

	werrors "github.com/wirelay/wirelay/internal/errors"
	"github.com/wirelay/wirelay/pkg/keys"
)

// Section scanning context. Unknown section names get their own context so
// their keys are ignored without disturbing an open peer record.
type section int

const (
	sectionInterface section = iota
	sectionPeer
	sectionUnknown
)

// Parse parses a textual tunnel configuration.
//
// The scan is line oriented. Blank lines and lines starting with '#' are
// skipped, except that a blank line inside a [Peer] section closes the open
// peer record: the record is committed if it carries both PublicKey and
// Endpoint and silently discarded otherwise, and scanning returns to
// Interface context. Opening any new section closes an open peer record
// under the same rule, as does the end of input.
//
// Parse fails when PrivateKey or Address was never set, when a key does not
// decode to 32 bytes of base64, or when two peers share a public key.
func Parse(text string) (*TunnelConfig, error) {
	cfg := &TunnelConfig{ListenPort: DefaultListenPort}

	var (
		scope       = sectionInterface
		current     *PeerConfig
		seenKeys    = make(map[keys.Key]struct{})
		haveKey     bool
		haveAddress bool
	)

	commit := func() error {
		if current == nil {
			return nil
		}
		peer := current
		current = nil
		if peer.PublicKey.IsZero() || peer.Endpoint == "" {
			return nil // incomplete record, dropped
		}
		if _, dup := seenKeys[peer.PublicKey]; dup {
			return werrors.NewConfigError("PublicKey", werrors.ErrDuplicatePeer)
		}
		seenKeys[peer.PublicKey] = struct{}{}
		cfg.Peers = append(cfg.Peers, *peer)
		return nil
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)

		if line == "" {
			if scope == sectionPeer {
				if err := commit(); err != nil {
					return nil, err
				}
				scope = sectionInterface
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if err := commit(); err != nil {
				return nil, err
			}
			switch line[1 : len(line)-1] {
			case "Interface":
				scope = sectionInterface
			case "Peer":
				scope = sectionPeer
				current = &PeerConfig{}
			default:
				scope = sectionUnknown
			}
			continue
		}

		idx := strings.Index(line, "=")
		if idx < 0 {
			continue // not a key = value line, ignored
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])

		switch scope {
		case sectionInterface:
			switch key {
			case "PrivateKey":
				k, err := keys.Decode(value)
				if err != nil {
					return nil, werrors.NewConfigError("PrivateKey", err)
				}
				cfg.PrivateKey = k
				haveKey = true
			case "Address":
				// Keep the address, drop any /prefix component.
				cfg.Address = strings.SplitN(value, "/", 2)[0]
				haveAddress = cfg.Address != ""
			case "ListenPort":
				if p, err := strconv.ParseUint(value, 10, 16); err == nil {
					cfg.ListenPort = uint16(p)
				}
				// Unparsable values keep the default.
			}
		case sectionPeer:
			if current == nil {
				continue
			}
			switch key {
			case "PublicKey":
				k, err := keys.Decode(value)
				if err != nil {
					return nil, werrors.NewConfigError("PublicKey", err)
				}
				current.PublicKey = k
			case "Endpoint":
				current.Endpoint = value
			case "AllowedIPs":
				for _, cidr := range strings.Split(value, ",") {
					if cidr = strings.TrimSpace(cidr); cidr != "" {
						current.AllowedIPs = append(current.AllowedIPs, cidr)
					}
				}
			case "PersistentKeepalive":
				if ka, err := strconv.ParseUint(value, 10, 16); err == nil {
					current.PersistentKeepalive = uint16(ka)
				}
			}
		}
	}

	if err := commit(); err != nil {
		return nil, err
	}

	if !haveKey {
		return nil, werrors.NewConfigError("PrivateKey", werrors.ErrMissingField)
	}
	if !haveAddress {
		return nil, werrors.NewConfigError("Address", werrors.ErrMissingField)
	}

	return cfg, nil
}
