package database

import "errors"

var (
	// ErrNotInitialized is returned by the provider before a backend registers.
	ErrNotInitialized = errors.New("database backend not initialized: DATABASE_URL or SQLITE_PATH is required")

	// ErrConcurrentModification is returned by backends when a transaction lost
	// a race on the same classroom day (serialization failure, deadlock, busy lock).
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
)
