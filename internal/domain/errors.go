package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the root of every "record absent" error.
	ErrNotFound = errors.New("not found")
	// ErrQuizNotFound indicates the quiz definition could not be located.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrProgressNotFound is returned when no in-flight attempt exists for a (user, quiz) pair.
	ErrProgressNotFound = fmt.Errorf("attempt progress %w", ErrNotFound)
	// ErrResultNotFound is returned when the pair has not been finalized yet.
	ErrResultNotFound = fmt.Errorf("attempt result %w", ErrNotFound)
	// ErrAlreadySubmitted guards the single-attempt rule, including the race-resolved case.
	ErrAlreadySubmitted = errors.New("quiz already submitted")
	// ErrInvalidInput covers malformed answer sets, negative elapsed time and missing fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStorage marks an unavailable store or an unexpected constraint failure.
	ErrStorage = errors.New("storage failure")
	// ErrForbidden is returned when the acting user may not read a quiz's results.
	ErrForbidden = errors.New("forbidden")
)

// StorageError wraps a driver error with the store operation that produced it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return e.Op + ": storage failure"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is lets callers test for ErrStorage without losing the underlying cause.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Storage wraps err as a StorageError. A nil err stays nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Invalid builds an ErrInvalidInput error with a formatted reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
