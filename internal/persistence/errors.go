package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")

	// ErrDuplicate is returned when a write violates a UNIQUE or PRIMARY KEY constraint.
	ErrDuplicate = errors.New("persistence: duplicate record")

	// ErrConstraint is returned for CHECK, NOT NULL and FOREIGN KEY violations.
	ErrConstraint = errors.New("persistence: constraint violation")

	// ErrLocked is returned when the database stayed busy past the busy timeout.
	ErrLocked = errors.New("persistence: database locked")
)
