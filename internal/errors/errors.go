// Package errors defines the error types used across the wirelay tunnel.
// Configuration and key errors are fatal at construction time; session and
// transport errors are recovered by the pipeline and surface only in logs
// and metrics.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration parsing and peer directory construction
var (
	// ErrMissingField indicates a required Interface field was never set
	ErrMissingField = errors.New("config: missing required field")

	// ErrSyntax indicates a malformed configuration construct
	ErrSyntax = errors.New("config: malformed configuration")

	// ErrInvalidEndpoint indicates a peer endpoint that does not parse as a
	// network address
	ErrInvalidEndpoint = errors.New("config: invalid peer endpoint")

	// ErrDuplicatePeer indicates two peers share a public key
	ErrDuplicatePeer = errors.New("config: duplicate peer public key")

	// ErrDuplicateEndpoint indicates two peers resolve to the same endpoint
	// address, which would make inbound traffic attribution ambiguous
	ErrDuplicateEndpoint = errors.New("config: two peers share an endpoint")

	// ErrNoPeers indicates an operation that needs at least one configured peer
	ErrNoPeers = errors.New("config: no peers configured")
)

// Sentinel errors for identity key handling
var (
	// ErrInvalidKeyLength indicates a decoded key is not exactly 32 bytes
	ErrInvalidKeyLength = errors.New("keys: decoded key is not 32 bytes")

	// ErrInvalidKeyEncoding indicates input that is not valid base64
	ErrInvalidKeyEncoding = errors.New("keys: invalid base64 encoding")
)

// Sentinel errors for session and handshake operations
var (
	// ErrNotEstablished indicates encapsulation was attempted before a
	// completed handshake
	ErrNotEstablished = errors.New("session: no completed handshake")

	// ErrSessionExpired indicates the session keys are past their usable
	// lifetime and a rekey is required
	ErrSessionExpired = errors.New("session: expired, rekey required")

	// ErrHandshakeFailed indicates the handshake could not be completed
	ErrHandshakeFailed = errors.New("session: handshake failed")

	// ErrAuthenticationFailed indicates AEAD or MAC verification failed
	ErrAuthenticationFailed = errors.New("session: authentication failed")

	// ErrReplayDetected indicates a data counter outside the replay window
	ErrReplayDetected = errors.New("session: replay detected")

	// ErrInvalidMessage indicates a datagram that does not parse as any
	// protocol message
	ErrInvalidMessage = errors.New("session: malformed datagram")

	// ErrInvalidState indicates an operation invalid for the current
	// session state
	ErrInvalidState = errors.New("session: invalid state for operation")
)

// Sentinel errors for the UDP transport
var (
	// ErrBindFailed indicates the listen socket could not be bound
	ErrBindFailed = errors.New("transport: socket bind failed")

	// ErrSendFailed indicates a datagram transmit error
	ErrSendFailed = errors.New("transport: datagram send failed")

	// ErrReceiveFailed indicates a datagram receive error
	ErrReceiveFailed = errors.New("transport: datagram receive failed")

	// ErrPipelineClosed indicates the pipeline has shut down
	ErrPipelineClosed = errors.New("transport: pipeline shut down")

	// ErrDatagramTooLarge indicates a payload that cannot fit in one datagram
	ErrDatagramTooLarge = errors.New("transport: datagram exceeds maximum size")
)

// ConfigError wraps a configuration error with the field or key that caused it.
type ConfigError struct {
	Field string // Configuration key or section (e.g. "PrivateKey")
	Err   error  // Underlying error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config field %q: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(field string, err error) *ConfigError {
	return &ConfigError{Field: field, Err: err}
}

// CryptoError wraps a cryptographic error with the operation that failed.
type CryptoError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// NewCryptoError creates a new CryptoError
func NewCryptoError(op string, err error) *CryptoError {
	return &CryptoError{Op: op, Err: err}
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
