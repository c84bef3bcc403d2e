package retry

import (
	"errors"
	"fmt"

	"github.com/vyrodovalexey/opgw/internal/classify"
)

// ErrCancelled matches any *Error produced by context cancellation.
var ErrCancelled = errors.New("operation cancelled")

// Error is the terminal failure of an Executor run.
type Error struct {
	// Op is the operation name.
	Op string

	// Attempts is the number of attempts made.
	Attempts int

	// Classification is the verdict for Cause.
	Classification classify.Classification

	// Cause is the last attempt error, or the context error when Cancelled.
	Cause error

	// Cancelled reports that the context ended the run.
	Cancelled bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cancelled {
		return fmt.Sprintf("%s cancelled after %d attempt(s): %v", e.Op, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("%s failed after %d attempt(s) [%s]: %v",
		e.Op, e.Attempts, e.Classification, e.Cause)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports cancellation through ErrCancelled.
func (e *Error) Is(target error) bool {
	return target == ErrCancelled && e.Cancelled
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so Run stops without retrying, whatever its
// classification. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
