package index

import "errors"

var (
	// ErrArenaFull is returned when growing the arena would exceed its ceiling.
	// The index is left exactly as it was before the failed call.
	ErrArenaFull = errors.New("index: arena ceiling exceeded")

	// ErrRegion is returned when the memory provider cannot supply a region.
	ErrRegion = errors.New("index: region allocation failed")

	// ErrClosed is returned by operations on a released index.
	ErrClosed = errors.New("index: closed")
)
