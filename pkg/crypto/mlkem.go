// mlkem.go wraps the ML-KEM-768 key encapsulation mechanism (NIST FIPS 203)
// from CIRCL.
//
// ML-KEM provides the post-quantum half of the hybrid handshake: the session
// master secret remains secure if either X25519 or ML-KEM is unbroken.
// ML-KEM-768 (NIST Category 3) is used rather than ML-KEM-1024 so an entire
// handshake initiation, including the 1184-byte encapsulation key, fits in a
// single 1500-byte datagram.
package crypto

import (
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"

	werrors "github.com/wirelay/wirelay/internal/errors"
)

// ML-KEM-768 encoding sizes, re-exported for wire-format arithmetic.
const (
	// MLKEMPublicKeySize is the encapsulation key encoding size.
	MLKEMPublicKeySize = mlkem768.PublicKeySize

	// MLKEMCiphertextSize is the ciphertext encoding size.
	MLKEMCiphertextSize = mlkem768.CiphertextSize

	// MLKEMSharedSecretSize is the shared secret size.
	MLKEMSharedSecretSize = mlkem768.SharedKeySize
)

// MLKEMPublicKey wraps an ML-KEM-768 encapsulation key.
type MLKEMPublicKey struct {
	key *mlkem768.PublicKey
}

// MLKEMPrivateKey wraps an ML-KEM-768 decapsulation key.
type MLKEMPrivateKey struct {
	key *mlkem768.PrivateKey
}

// MLKEMKeyPair represents an ML-KEM-768 key pair.
type MLKEMKeyPair struct {
	EncapsulationKey *MLKEMPublicKey
	DecapsulationKey *MLKEMPrivateKey
}

// GenerateMLKEMKeyPair generates a new ML-KEM-768 key pair.
func GenerateMLKEMKeyPair() (*MLKEMKeyPair, error) {
	pk, sk, err := mlkem768.GenerateKeyPair(Reader)
	if err != nil {
		return nil, werrors.NewCryptoError("MLKEMKeyPair.Generate", err)
	}
	return &MLKEMKeyPair{
		EncapsulationKey: &MLKEMPublicKey{key: pk},
		DecapsulationKey: &MLKEMPrivateKey{key: sk},
	}, nil
}

// MLKEMEncapsulate encapsulates a fresh shared secret to the given
// encapsulation key.
func MLKEMEncapsulate(ek *MLKEMPublicKey) (ciphertext, sharedSecret []byte, err error) {
	if ek == nil || ek.key == nil {
		return nil, nil, werrors.ErrInvalidKeyLength
	}

	ct := make([]byte, MLKEMCiphertextSize)
	ss := make([]byte, MLKEMSharedSecretSize)

	seed := make([]byte, mlkem768.EncapsulationSeedSize)
	if err := SecureRandom(seed); err != nil {
		return nil, nil, werrors.NewCryptoError("MLKEMEncapsulate", err)
	}

	ek.key.EncapsulateTo(ct, ss, seed)

	return ct, ss, nil
}

// MLKEMDecapsulate recovers the shared secret from a ciphertext. Malformed
// ciphertexts decapsulate to an unpredictable value rather than an error
// (implicit rejection); authentication happens at the AEAD layer.
func MLKEMDecapsulate(dk *MLKEMPrivateKey, ciphertext []byte) ([]byte, error) {
	if dk == nil || dk.key == nil {
		return nil, werrors.ErrInvalidKeyLength
	}
	if len(ciphertext) != mlkem768.CiphertextSize {
		return nil, werrors.ErrInvalidMessage
	}

	ss := make([]byte, MLKEMSharedSecretSize)
	dk.key.DecapsulateTo(ss, ciphertext)

	return ss, nil
}

// Bytes returns the encoded encapsulation key.
func (pk *MLKEMPublicKey) Bytes() []byte {
	if pk == nil || pk.key == nil {
		return nil
	}
	buf := make([]byte, mlkem768.PublicKeySize)
	pk.key.Pack(buf)
	return buf
}

// ParseMLKEMPublicKey parses an encapsulation key from its encoded form.
func ParseMLKEMPublicKey(data []byte) (*MLKEMPublicKey, error) {
	if len(data) != mlkem768.PublicKeySize {
		return nil, werrors.ErrInvalidKeyLength
	}

	pk := new(mlkem768.PublicKey)
	if err := pk.Unpack(data); err != nil {
		return nil, werrors.NewCryptoError("ParseMLKEMPublicKey", err)
	}

	return &MLKEMPublicKey{key: pk}, nil
}
