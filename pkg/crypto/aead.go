// aead.go implements authenticated encryption using ChaCha20-Poly1305.
//
// Nonces are caller-supplied and derived from the data message counter, so
// nonce uniqueness is guaranteed by the session's monotonic counter and the
// per-handshake key rotation. Nonce reuse under one key breaks the cipher;
// callers must never encrypt two messages with the same counter.
package crypto

import (
	"crypto/cipher"
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/wirelay/wirelay/internal/constants"
	werrors "github.com/wirelay/wirelay/internal/errors"
)

// AEAD wraps a ChaCha20-Poly1305 cipher with explicit nonces.
type AEAD struct {
	cipher cipher.AEAD
}

// NewAEAD creates an AEAD from a 32-byte key.
func NewAEAD(key []byte) (*AEAD, error) {
	if len(key) != constants.AEADKeySize {
		return nil, werrors.ErrInvalidKeyLength
	}
	c, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, werrors.NewCryptoError("NewAEAD", err)
	}
	return &AEAD{cipher: c}, nil
}

// Seal encrypts and authenticates plaintext under the given nonce,
// authenticating additionalData alongside. Returns ciphertext || tag.
func (a *AEAD) Seal(nonce, plaintext, additionalData []byte) ([]byte, error) {
	if len(nonce) != constants.AEADNonceSize {
		return nil, werrors.NewCryptoError("AEAD.Seal", werrors.ErrInvalidMessage)
	}
	return a.cipher.Seal(nil, nonce, plaintext, additionalData), nil
}

// Open verifies and decrypts ciphertext || tag under the given nonce.
func (a *AEAD) Open(nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if len(nonce) != constants.AEADNonceSize {
		return nil, werrors.NewCryptoError("AEAD.Open", werrors.ErrInvalidMessage)
	}
	if len(ciphertext) < constants.AEADTagSize {
		return nil, werrors.ErrInvalidMessage
	}
	plaintext, err := a.cipher.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, werrors.ErrAuthenticationFailed
	}
	return plaintext, nil
}

// CounterNonce builds a 12-byte nonce from a 64-bit message counter:
// four zero bytes followed by the counter in big-endian order.
func CounterNonce(counter uint64) []byte {
	nonce := make([]byte, constants.AEADNonceSize)
	binary.BigEndian.PutUint64(nonce[4:], counter)
	return nonce
}
