// Package noise implements the wirelay handshake and transport protocol: a
// two-message hybrid handshake combining X25519 with ML-KEM-768, followed by
// ChaCha20-Poly1305 data messages with counter nonces and replay protection.
package noise

import (
	"encoding/binary"

	"github.com/wirelay/wirelay/internal/constants"
	werrors "github.com/wirelay/wirelay/internal/errors"
	"github.com/wirelay/wirelay/pkg/crypto"
)

// Message types, carried in the first byte of every datagram. The remaining
// three header bytes are reserved and must be zero.
const (
	msgTypeInit     byte = 0x01
	msgTypeResponse byte = 0x02
	msgTypeData     byte = 0x04
)

const (
	headerSize  = 4
	macSize     = 16
	confirmSize = 16
)

// Initiation layout: header, sender index, initiator static key, initiator
// ephemeral key, ML-KEM encapsulation key, MAC.
const (
	initSenderOffset = headerSize
	initStaticOffset = initSenderOffset + 4
	initEphOffset    = initStaticOffset + constants.KeySize
	initKEMOffset    = initEphOffset + constants.KeySize
	initMACOffset    = initKEMOffset + crypto.MLKEMPublicKeySize

	// InitMessageSize is the handshake initiation size: 1272 bytes, inside
	// a single 1500-byte datagram.
	InitMessageSize = initMACOffset + macSize
)

// Response layout: header, sender index, receiver index, responder ephemeral
// key, ML-KEM ciphertext, confirmation tag.
const (
	respSenderOffset   = headerSize
	respReceiverOffset = respSenderOffset + 4
	respEphOffset      = respReceiverOffset + 4
	respKEMOffset      = respEphOffset + constants.KeySize
	respConfirmOffset  = respKEMOffset + crypto.MLKEMCiphertextSize

	// ResponseMessageSize is the handshake response size: 1148 bytes.
	ResponseMessageSize = respConfirmOffset + confirmSize
)

// Data layout: header, receiver index, 8-byte counter, AEAD ciphertext. The
// 16-byte prefix is authenticated as additional data.
const (
	dataReceiverOffset   = headerSize
	dataCounterOffset    = dataReceiverOffset + 4
	dataCiphertextOffset = dataCounterOffset + 8

	// DataOverhead is the fixed per-datagram cost of a data message: the
	// 16-byte prefix plus the AEAD tag.
	DataOverhead = dataCiphertextOffset + constants.AEADTagSize

	// MaxPlaintextSize is the largest packet that fits in one data message.
	MaxPlaintextSize = constants.MaxDatagramSize - DataOverhead
)

func putHeader(buf []byte, msgType byte) {
	buf[0] = msgType
	buf[1], buf[2], buf[3] = 0, 0, 0
}

// messageType validates the header of a datagram and returns its type.
func messageType(datagram []byte) (byte, error) {
	if len(datagram) < headerSize {
		return 0, werrors.ErrInvalidMessage
	}
	if datagram[1] != 0 || datagram[2] != 0 || datagram[3] != 0 {
		return 0, werrors.ErrInvalidMessage
	}
	switch t := datagram[0]; t {
	case msgTypeInit, msgTypeResponse, msgTypeData:
		return t, nil
	default:
		return 0, werrors.ErrInvalidMessage
	}
}

func putUint32(buf []byte, v uint32) { binary.BigEndian.PutUint32(buf, v) }
func getUint32(buf []byte) uint32    { return binary.BigEndian.Uint32(buf) }
