package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by any tick or query made before
	// Initialize has run.
	ErrNotInitialized = errors.New("simulation not initialized")

	// ErrInvariantViolation marks persisted data that breaks a structural
	// rule, such as two living gods in one domain. It is not recoverable.
	ErrInvariantViolation = errors.New("invariant violation")
)

// StorageError wraps a failure from the storage collaborator. In-memory
// state has already advanced when a tick returns one.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
