package store

import "errors"

var (
	// ErrNotFound is returned when a record does not exist, or when a
	// conditional update no longer matches.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate")
)
