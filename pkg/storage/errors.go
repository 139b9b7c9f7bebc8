package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a row does not exist or is outside the
	// calling principal's visibility.
	ErrNotFound = errors.New("resource not found")
)
