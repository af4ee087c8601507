package bridge

import (
	"errors"
	"fmt"
)

// ErrAlreadyLoaded is returned when a module is attached twice.
var ErrAlreadyLoaded = errors.New("module already attached to bridge")

// NotLoadedError occurs when Parse is called before the module is attached.
type NotLoadedError struct {
	Operation string
}

func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("%s called before the parser module was loaded", e.Operation)
}

// AllocationError occurs when the module cannot provide a region.
type AllocationError struct {
	Length uint32
	Err    error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("failed to allocate %d bytes in module memory: %v", e.Length, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// WriteError occurs when input bytes cannot be copied into a region.
type WriteError struct {
	Address uint32
	Length  uint32
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %d bytes at address %d", e.Length, e.Address)
}

// UnterminatedResultError occurs when no terminator is found after a result
// pointer. The region size is unknown so it is never released.
type UnterminatedResultError struct {
	Address uint32
	Scanned uint32
}

func (e *UnterminatedResultError) Error() string {
	return fmt.Sprintf("result at address %d is not terminated within %d bytes", e.Address, e.Scanned)
}

// InvalidUTF8Error occurs when the module returns bytes that are not UTF-8.
type InvalidUTF8Error struct {
	Address uint32
	Offset  int
}

func (e *InvalidUTF8Error) Error() string {
	return fmt.Sprintf("result at address %d is not valid UTF-8 (first bad byte at offset %d)", e.Address, e.Offset)
}

// ReleaseError occurs when a region is released that is not live.
type ReleaseError struct {
	Address uint32
	Length  uint32
	Reason  string
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("invalid release (addr=%d, len=%d): %s", e.Address, e.Length, e.Reason)
}
