package storage

import "errors"

var (
	// ErrNotFound is returned when no matching record exists.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a record with the same ID already exists.
	ErrDuplicate = errors.New("record already exists")
)
