// x25519.go wraps X25519 (RFC 7748) Diffie-Hellman from crypto/ecdh.
//
// X25519 provides the classical half of the hybrid handshake and is also the
// identity key scheme: peers are named by their X25519 public keys.
package crypto

import (
	"crypto/ecdh"

	"github.com/wirelay/wirelay/internal/constants"
	werrors "github.com/wirelay/wirelay/internal/errors"
)

// X25519KeyPair holds an X25519 key pair.
type X25519KeyPair struct {
	PublicKey  *ecdh.PublicKey
	PrivateKey *ecdh.PrivateKey
}

// GenerateX25519KeyPair generates a new X25519 key pair from the system CSPRNG.
func GenerateX25519KeyPair() (*X25519KeyPair, error) {
	privateKey, err := ecdh.X25519().GenerateKey(Reader)
	if err != nil {
		return nil, werrors.NewCryptoError("X25519KeyPair.Generate", err)
	}
	return &X25519KeyPair{
		PublicKey:  privateKey.PublicKey(),
		PrivateKey: privateKey,
	}, nil
}

// NewX25519PrivateKey builds a private key from 32 raw bytes. Deterministic:
// the same bytes always produce the same key pair.
func NewX25519PrivateKey(privateKeyBytes []byte) (*ecdh.PrivateKey, error) {
	if len(privateKeyBytes) != constants.KeySize {
		return nil, werrors.ErrInvalidKeyLength
	}
	privateKey, err := ecdh.X25519().NewPrivateKey(privateKeyBytes)
	if err != nil {
		return nil, werrors.NewCryptoError("NewX25519PrivateKey", err)
	}
	return privateKey, nil
}

// ParseX25519PublicKey parses a public key from its 32-byte encoding.
func ParseX25519PublicKey(data []byte) (*ecdh.PublicKey, error) {
	if len(data) != constants.KeySize {
		return nil, werrors.ErrInvalidKeyLength
	}
	publicKey, err := ecdh.X25519().NewPublicKey(data)
	if err != nil {
		return nil, werrors.NewCryptoError("ParseX25519PublicKey", err)
	}
	return publicKey, nil
}

// X25519 computes the 32-byte shared secret between a private key and a
// peer's public key. The result must be fed through a KDF before use as a
// key; see DeriveKeyMultiple.
func X25519(privateKey *ecdh.PrivateKey, peerPublic *ecdh.PublicKey) ([]byte, error) {
	if privateKey == nil || peerPublic == nil {
		return nil, werrors.ErrInvalidKeyLength
	}
	sharedSecret, err := privateKey.ECDH(peerPublic)
	if err != nil {
		return nil, werrors.NewCryptoError("X25519", err)
	}
	return sharedSecret, nil
}
