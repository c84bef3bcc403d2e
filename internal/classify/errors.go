package classify

import "fmt"

// Error is a structured failure returned at the executor boundary.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// NewError creates an Error with a structured code.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error with a structured code around cause.
func Wrap(code string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Code: code, Message: msg, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode implements Coder.
func (e *Error) ErrorCode() string {
	return e.Code
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}
