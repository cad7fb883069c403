package registry

import "errors"

var (
	// ErrStaleEntity is returned for handles that were deleted or never existed.
	ErrStaleEntity = errors.New("registry: stale or unknown entity")
	// ErrWrongKind is returned when a handle of one kind is passed where another is expected.
	ErrWrongKind = errors.New("registry: wrong entity kind")
	// ErrAlreadyAttached is returned by Give when the entity already has the component.
	ErrAlreadyAttached = errors.New("registry: component already attached")
	// ErrNotAttached is returned when the entity does not have the component.
	ErrNotAttached = errors.New("registry: component not attached")
	// ErrSizeMismatch is returned by Set when the data does not match the component size.
	ErrSizeMismatch = errors.New("registry: payload size mismatch")
	// ErrExhausted is returned when every 32 bit identifier is in use.
	ErrExhausted = errors.New("registry: identifier space exhausted")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("registry: world is closed")
)
