package slotnvm

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOpen is returned when an operation runs before Open.
	ErrNotOpen = errors.New("slotnvm: not opened")

	// ErrAlreadyOpen is returned by a second Open on the same instance.
	ErrAlreadyOpen = errors.New("slotnvm: already opened")

	// ErrBadSlot is returned for slot numbers outside the configured range.
	ErrBadSlot = errors.New("slotnvm: slot number out of range")

	// ErrBadLength is returned for payloads outside 1..256 bytes.
	ErrBadLength = errors.New("slotnvm: data length out of range")

	// ErrNotFound is returned when a slot holds no data.
	ErrNotFound = errors.New("slotnvm: no data for slot")

	// ErrOutOfSpace is returned when a write does not fit outside the
	// rewrite reserve.
	ErrOutOfSpace = errors.New("slotnvm: not enough free space")

	// ErrMediumRead wraps a failed device read.
	ErrMediumRead = errors.New("slotnvm: medium read failed")

	// ErrMediumWrite wraps a failed device write. After a power loss the
	// next Open recovers the medium.
	ErrMediumWrite = errors.New("slotnvm: medium write failed")

	// ErrCorrupt is returned when on-medium structure contradicts the
	// indices rebuilt at Open, e.g. a chain pointer leaving the medium.
	ErrCorrupt = errors.New("slotnvm: medium corrupt")
)

// SizeError reports a buffer too small for the slot's data. Callers query
// a slot's size by reading into a nil buffer and inspecting Needed.
type SizeError struct {
	Needed int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("slotnvm: buffer too small, need %d bytes", e.Needed)
}

func readErr(err error) error {
	return fmt.Errorf("%w: %w", ErrMediumRead, err)
}

func writeErr(err error) error {
	return fmt.Errorf("%w: %w", ErrMediumWrite, err)
}
