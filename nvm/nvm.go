// Package nvm provides access to byte-addressable non-volatile memory.
package nvm

import "errors"

// ErrOutOfRange is returned for accesses beyond the device size.
var ErrOutOfRange = errors.New("nvm: address out of range")

// ErrPowerLoss is returned by a fault-injecting device when an armed
// power loss fires. The write it interrupts is not applied.
var ErrPowerLoss = errors.New("nvm: power lost during write")

// Device is byte-addressable non-volatile memory over addresses
// [0, Size()).
//
// A Device does not reorder writes: a byte written by an earlier call is
// durable before any byte written by a later call. Single-byte writes are
// atomic; there is no partial byte.
type Device interface {
	// ReadByte reads the byte at address a.
	ReadByte(a uint32) (byte, error)

	// ReadAt fills buf starting at address a.
	ReadAt(a uint32, buf []byte) error

	// WriteByte writes one byte at address a.
	WriteByte(a uint32, v byte) error

	// WriteAt writes buf starting at address a. On error a prefix of buf
	// may have been written.
	WriteAt(a uint32, buf []byte) error

	// Size reports how big the device is, in bytes.
	Size() uint32
}
