package gree

import (
	"errors"
	"fmt"
)

// Domain errors for the Gree bridge package.
var (
	// ErrNetworkTimeout is returned when a device does not reply within the
	// exchange deadline. The device is marked unavailable; the next poll
	// cycle retries.
	ErrNetworkTimeout = errors.New("gree: network timeout")

	// ErrCrypto is returned when a pack cannot be encrypted or decrypted.
	// Usually the device is using a key other than the one we hold.
	ErrCrypto = errors.New("gree: crypto failure")

	// ErrMalformedStatus is returned when a status reply is structurally
	// invalid, including a dat vector with fewer than 13 values.
	ErrMalformedStatus = errors.New("gree: malformed status")

	// ErrBindFailed is returned when the bind handshake yields no usable key.
	ErrBindFailed = errors.New("gree: bind failed")

	// ErrUnexpectedResponse is returned when a reply carries the wrong tag.
	ErrUnexpectedResponse = errors.New("gree: unexpected response")

	// ErrUnknownDevice is returned when a device ID is not in the registry.
	ErrUnknownDevice = errors.New("gree: unknown device")

	// ErrNoDevices is returned when neither configuration nor discovery
	// produced any device to manage.
	ErrNoDevices = errors.New("gree: no devices known")

	// ErrBridgeStopped is returned when work is submitted after Stop.
	ErrBridgeStopped = errors.New("gree: bridge stopped")

	// ErrQueueFull is returned when the command queue cannot accept more work.
	ErrQueueFull = errors.New("gree: command queue full")
)

// CryptoError describes a cipher failure. It matches ErrCrypto with errors.Is.
type CryptoError struct {
	Op  string // "encrypt" or "decrypt"
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("gree: %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// Is reports whether target is ErrCrypto.
func (e *CryptoError) Is(target error) bool {
	return target == ErrCrypto
}
