// Package crypto provides the low-level primitives used by the wirelay
// handshake engine: CSPRNG helpers, X25519, ML-KEM-768, ChaCha20-Poly1305,
// and SHAKE-256 key derivation. It wraps standard library and third-party
// implementations with consistent error handling; no cryptographic math is
// implemented here.
package crypto

import (
	"crypto/rand"
	"io"

	werrors "github.com/wirelay/wirelay/internal/errors"
)

// SecureRandom fills b with cryptographically secure random bytes from the
// operating system CSPRNG. A returned error indicates a failing system RNG
// and should be treated as fatal.
func SecureRandom(b []byte) error {
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return werrors.NewCryptoError("SecureRandom", err)
	}
	return nil
}

// SecureRandomBytes returns n cryptographically secure random bytes.
func SecureRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := SecureRandom(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Reader is an io.Reader yielding cryptographically secure random bytes.
var Reader = rand.Reader

// ConstantTimeCompare compares two byte slices in constant time.
// Returns true if the slices are equal.
func ConstantTimeCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var result byte
	for i := range a {
		result |= a[i] ^ b[i]
	}
	return result == 0
}

// Zeroize overwrites sensitive data with zeros. The runtime may already have
// copied the data elsewhere; this is best effort.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ZeroizeMultiple zeroizes several slices.
func ZeroizeMultiple(slices ...[]byte) {
	for _, s := range slices {
		Zeroize(s)
	}
}
