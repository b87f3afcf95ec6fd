package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a unique key is already taken.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when a store rejects its arguments.
	ErrInvalidInput = errors.New("invalid input")
)
