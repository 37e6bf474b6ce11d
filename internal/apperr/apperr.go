// Package apperr provides the structured error kinds returned by the engine.
// Callers translate a Code to their transport status; this package does not
// render user-facing text.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error kind.
type Code string

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeNotFound              Code = "NOT_FOUND"
	CodeIntegrityViolation    Code = "INTEGRITY_VIOLATION"
	CodeMalformedPayload      Code = "MALFORMED_PAYLOAD"
	CodePreconditionFailed    Code = "PRECONDITION_FAILED"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeMalformedSessionState Code = "MALFORMED_SESSION_STATE"
	CodeInfrastructure        Code = "INFRASTRUCTURE"
)

// HTTPStatus maps a code to the status the HTTP layer responds with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeIntegrityViolation, CodeInvalidArgument:
		return http.StatusUnprocessableEntity
	case CodePreconditionFailed:
		return http.StatusConflict
	case CodeMalformedPayload:
		return http.StatusBadGateway
	case CodeInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error carrying a code and structured detail.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Problems []string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error with the given code that wraps cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// With attaches a metadata entry and returns the same error.
func (e *Error) With(key, value string) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// WithProblems attaches the integrity problem list.
func (e *Error) WithProblems(problems []string) *Error {
	e.Problems = append([]string(nil), problems...)
	return e
}

// Infrastructure wraps a store or scorer failure. Errors that already carry a
// code are returned unchanged.
func Infrastructure(message string, cause error) error {
	if cause == nil {
		return nil
	}
	var e *Error
	if errors.As(cause, &e) {
		return cause
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		message += ": timed out"
	}
	return Wrap(CodeInfrastructure, message, cause)
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// GetMetadata extracts metadata from an error if present.
func GetMetadata(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Metadata
	}
	return nil
}

// GetProblems extracts the integrity problem list from an error if present.
func GetProblems(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Problems
	}
	return nil
}
