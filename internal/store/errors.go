package store

import "errors"

// Common store errors.
var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrStaleState is returned when a conditional status update matched no row
	// because the stored status no longer equals the expected one.
	ErrStaleState = errors.New("resource state changed since it was read")

	// ErrDuplicate is returned when a uniqueness constraint rejects a write.
	ErrDuplicate = errors.New("duplicate resource")
)
