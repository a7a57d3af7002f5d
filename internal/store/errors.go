package store

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionFailed indicates a failure to connect to the database.
	ErrConnectionFailed = errors.New("store: connection failed")

	// ErrInsertFailed indicates an insert failure.
	ErrInsertFailed = errors.New("store: insert failed")

	// ErrQueryFailed indicates a query execution failure.
	ErrQueryFailed = errors.New("store: query failed")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store: closed")
)

// StoreError wraps store errors with the failing operation.
type StoreError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// WrapConnectionError wraps an error as a connection error.
func WrapConnectionError(op string, err error) error {
	return &StoreError{Op: op, Err: fmt.Errorf("%w: %v", ErrConnectionFailed, err)}
}

// WrapInsertError wraps an error as an insert error.
func WrapInsertError(op string, err error) error {
	return &StoreError{Op: op, Err: fmt.Errorf("%w: %v", ErrInsertFailed, err)}
}

// WrapQueryError wraps an error as a query error.
func WrapQueryError(op string, err error) error {
	return &StoreError{Op: op, Err: fmt.Errorf("%w: %v", ErrQueryFailed, err)}
}
