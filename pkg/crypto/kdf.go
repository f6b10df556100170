// kdf.go implements key derivation using SHAKE-256 (FIPS 202).
//
// All derivations are domain-separated and every input is length-prefixed
// with a 4-byte big-endian integer so concatenated inputs parse unambiguously.
package crypto

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"

	"github.com/wirelay/wirelay/internal/constants"
	werrors "github.com/wirelay/wirelay/internal/errors"
)

// DeriveKey derives outputLen bytes from a single input under the given
// domain separator.
func DeriveKey(domain string, input []byte, outputLen int) ([]byte, error) {
	return DeriveKeyMultiple(domain, [][]byte{input}, outputLen)
}

// DeriveKeyMultiple derives outputLen bytes from several inputs under the
// given domain separator. The handshake uses this to combine the X25519
// shared secrets, the ML-KEM shared secret, and the transcript hash.
func DeriveKeyMultiple(domain string, inputs [][]byte, outputLen int) ([]byte, error) {
	if outputLen <= 0 || outputLen > 1<<20 {
		return nil, werrors.NewCryptoError("DeriveKeyMultiple", werrors.ErrInvalidKeyLength)
	}

	h := sha3.NewShake256()
	lenBuf := make([]byte, 4)

	domainBytes := []byte(domain)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(domainBytes)))
	h.Write(lenBuf)
	h.Write(domainBytes)

	binary.BigEndian.PutUint32(lenBuf, uint32(len(inputs)))
	h.Write(lenBuf)

	for _, input := range inputs {
		binary.BigEndian.PutUint32(lenBuf, uint32(len(input)))
		h.Write(lenBuf)
		h.Write(input)
	}

	output := make([]byte, outputLen)
	_, _ = h.Read(output) // SHAKE256.Read never fails

	return output, nil
}

// DeriveTrafficKeys derives the two directional traffic keys from a session
// master secret. The initiator encrypts with initiatorKey and decrypts with
// responderKey; the responder does the opposite.
func DeriveTrafficKeys(masterSecret []byte) (initiatorKey, responderKey []byte, err error) {
	initiatorKey, err = DeriveKey(constants.DomainSeparatorTrafficInitiator, masterSecret, constants.AEADKeySize)
	if err != nil {
		return nil, nil, err
	}
	responderKey, err = DeriveKey(constants.DomainSeparatorTrafficResponder, masterSecret, constants.AEADKeySize)
	if err != nil {
		return nil, nil, err
	}
	return initiatorKey, responderKey, nil
}

// TranscriptHash computes a SHA3-256 hash binding the given handshake
// transcript parts in order. Each part is length-prefixed.
func TranscriptHash(parts ...[]byte) []byte {
	h := sha3.New256()
	lenBuf := make([]byte, 4)
	for _, part := range parts {
		binary.BigEndian.PutUint32(lenBuf, uint32(len(part)))
		h.Write(lenBuf)
		h.Write(part)
	}
	return h.Sum(nil)
}
