package alertstore

import (
	"errors"
	"fmt"
)

// Error categories for store failures.
var (
	// ErrNotFound indicates the requested alert does not exist.
	ErrNotFound = errors.New("alertstore: not found")

	// ErrMalformedRecord indicates a stored field could not be decoded.
	ErrMalformedRecord = errors.New("alertstore: malformed record")

	// ErrUnavailable indicates the backing storage failed; the triggering
	// operation is aborted and the caller decides whether to retry.
	ErrUnavailable = errors.New("alertstore: storage unavailable")

	// ErrIllegalTransition indicates a status transition rejected under
	// the strict lifecycle.
	ErrIllegalTransition = errors.New("alertstore: illegal status transition")

	// ErrInvalidDraft indicates the draft failed basic validation.
	ErrInvalidDraft = errors.New("alertstore: invalid draft")
)

// StoreError wraps store failures with the operation that produced them.
type StoreError struct {
	Op  string
	ID  int64
	Err error
}

func (e *StoreError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("alertstore.%s(id=%d): %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("alertstore.%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsIllegalTransition checks if the error is a rejected transition.
func IsIllegalTransition(err error) bool {
	return errors.Is(err, ErrIllegalTransition)
}

func notFound(op string, id int64) error {
	return &StoreError{Op: op, ID: id, Err: ErrNotFound}
}

func unavailable(op string, err error) error {
	return &StoreError{Op: op, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
}
