package domain

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist in the organization.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned by create operations that hit a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)
