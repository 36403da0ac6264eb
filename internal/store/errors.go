package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no row matched.
	ErrNotFound = errors.New("entity not found")

	// ErrSnapshotNotFound is returned when no metrics snapshot has been stored yet.
	ErrSnapshotNotFound = fmt.Errorf("%w: metrics snapshot", ErrNotFound)

	// ErrDuplicate maps unique constraint violations.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity covers snapshots rejected by Validate and by schema
	// constraints.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed wraps begin, commit and rollback failures.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrUnsupportedDriver is returned for a driver other than sqlite or postgres.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// IsNotFoundError reports whether err wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StoreError records which entity and operation failed.
type StoreError struct {
	Entity    string
	Operation string
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Entity, e.Operation, e.Message)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Entity, e.Operation, e.Message, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err with the entity and operation it came from.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{Entity: entity, Operation: operation, Message: message, Err: err}
}
