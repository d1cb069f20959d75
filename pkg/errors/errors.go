package errors

import "fmt"

// Standard error codes shared across packages. Domain packages may define
// their own more specific codes but should prefer these when no
// domain-specific code is warranted.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeInternal        = "INTERNAL"
	CodeUnavailable     = "UNAVAILABLE"
)

// AppError is the standard structured error used throughout the system.
// It carries a stable Code for programmatic handling, a human Message, and
// an optional wrapped cause.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New constructs an AppError with the given code, message, and optional cause.
func New(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Wrap attaches a message to an existing error under CodeInternal, preserving
// the original error as the cause.
func Wrap(err error, message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Cause: err}
}

// NotFound builds a CodeNotFound error.
func NotFound(message string, cause error) *AppError {
	return New(CodeNotFound, message, cause)
}

// Conflict builds a CodeConflict error.
func Conflict(message string, cause error) *AppError {
	return New(CodeConflict, message, cause)
}

// InvalidArgument builds a CodeInvalidArgument error.
func InvalidArgument(message string, cause error) *AppError {
	return New(CodeInvalidArgument, message, cause)
}

// Internal builds a CodeInternal error.
func Internal(message string, cause error) *AppError {
	return New(CodeInternal, message, cause)
}

// Unavailable builds a CodeUnavailable error, used for transport/backend
// reachability failures (e.g. a bus publish that cannot reach its transport).
func Unavailable(message string, cause error) *AppError {
	return New(CodeUnavailable, message, cause)
}

// Is reports whether err is an *AppError with the given code.
func Is(err error, code string) bool {
	var ae *AppError
	if As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// As is a thin wrapper over errors.As for *AppError, kept here so callers
// only need to import this package.
func As(err error, target **AppError) bool {
	for err != nil {
		if ae, ok := err.(*AppError); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// HTTPStatus maps an AppError's code to the HTTP status the gateway should
// return for it. Errors that are not *AppError map to 500.
func HTTPStatus(err error) int {
	var ae *AppError
	if !As(err, &ae) {
		return 500
	}
	switch ae.Code {
	case CodeNotFound:
		return 404
	case CodeInvalidArgument, CodeConflict:
		return 422
	case CodeUnavailable:
		return 503
	default:
		return 500
	}
}
