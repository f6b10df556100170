// Package keys manages wirelay identity keys: X25519 key pairs and their
// base64 textual encoding as used in configuration files.
package keys

import (
	"encoding/base64"

	"github.com/wirelay/wirelay/internal/constants"
	werrors "github.com/wirelay/wirelay/internal/errors"
	"github.com/wirelay/wirelay/pkg/crypto"
)

// KeySize is the raw byte length of every key, public and private.
const KeySize = constants.KeySize

// Key is a raw 32-byte X25519 key. The same type carries private and public
// keys; which one a value is follows from context.
type Key [KeySize]byte

// IsZero reports whether the key is all zeros (unset).
func (k Key) IsZero() bool {
	return k == Key{}
}

// String returns the base64 encoding of the key. Note that this prints
// private keys in full; do not log Key values that hold private material.
func (k Key) String() string {
	return Encode(k)
}

// GenerateKeyPair generates a new identity key pair from the system CSPRNG.
func GenerateKeyPair() (private, public Key, err error) {
	kp, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		return Key{}, Key{}, err
	}
	copy(private[:], kp.PrivateKey.Bytes())
	copy(public[:], kp.PublicKey.Bytes())
	return private, public, nil
}

// PublicKey derives the public key for a private key.
func PublicKey(private Key) (Key, error) {
	priv, err := crypto.NewX25519PrivateKey(private[:])
	if err != nil {
		return Key{}, err
	}
	var public Key
	copy(public[:], priv.PublicKey().Bytes())
	return public, nil
}

// Encode returns the standard base64 encoding of a key.
func Encode(k Key) string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// Decode parses a base64-encoded key. It fails with ErrInvalidKeyEncoding
// for input that is not valid base64 and ErrInvalidKeyLength when the
// decoded bytes are not exactly 32.
func Decode(s string) (Key, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Key{}, werrors.ErrInvalidKeyEncoding
	}
	if len(raw) != KeySize {
		return Key{}, werrors.ErrInvalidKeyLength
	}
	var k Key
	copy(k[:], raw)
	return k, nil
}
