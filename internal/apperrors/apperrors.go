// Package apperrors provides unified error handling with structured error codes.
package apperrors

import "fmt"

// Code classifies an error for propagation and retry decisions.
type Code int

const (
	CodeUnknown Code = iota
	CodeInternal
	CodeInvalidArgument
	CodeNotFound
	CodeTimeout
	CodeCancelled

	// CodeDeviceUnavailable is fatal to a listening session; recoverable
	// only by an explicit restart.
	CodeDeviceUnavailable

	// CodeModelUnavailable means the VAD or embedding model could not be
	// reached. Surfaced as status, never as a crash.
	CodeModelUnavailable

	// CodeTransientIO covers device reads, dispatch sends, and store
	// access failures that are worth retrying with backoff.
	CodeTransientIO

	// CodeDataIntegrity rejects a single operation (e.g. embedding
	// dimension mismatch) without touching stored state.
	CodeDataIntegrity

	// CodeStoreFailed covers cluster/segment store errors.
	CodeStoreFailed
)

var codeNames = map[Code]string{
	CodeUnknown:           "UNKNOWN",
	CodeInternal:          "INTERNAL",
	CodeInvalidArgument:   "INVALID_ARGUMENT",
	CodeNotFound:          "NOT_FOUND",
	CodeTimeout:           "TIMEOUT",
	CodeCancelled:         "CANCELLED",
	CodeDeviceUnavailable: "DEVICE_UNAVAILABLE",
	CodeModelUnavailable:  "MODEL_UNAVAILABLE",
	CodeTransientIO:       "TRANSIENT_IO",
	CodeDataIntegrity:     "DATA_INTEGRITY",
	CodeStoreFailed:       "STORE_FAILED",
}

// String returns the symbolic name for a code.
func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "UNKNOWN"
}

// AppError is the base error type with structured code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// GetCode extracts the code from an error, walking the cause chain.
func GetCode(err error) Code {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			return appErr.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTransientIO, CodeTimeout, CodeModelUnavailable, CodeStoreFailed:
		return true
	default:
		return false
	}
}
