package radix

import "errors"

var (
	// ErrInvalidPrefix is returned when a prefix cannot be built from its
	// textual or packed form before any tree operation runs.
	ErrInvalidPrefix = errors.New("invalid prefix")

	// ErrNotFound is returned by Delete when no exact match exists.
	ErrNotFound = errors.New("prefix not found")

	// ErrConcurrentModification is returned by an iteration that observes a
	// structural mutation since it began. The caller may restart the iteration.
	ErrConcurrentModification = errors.New("tree modified during iteration")
)
