package store

import "errors"

var (
	// ErrNotFound is returned by Get/GetPreviousRev when no matching
	// document/revision exists.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned by Put when the caller's rev does not
	// match the currently stored rev for the id.
	ErrConflict = errors.New("store: conflict")
)
