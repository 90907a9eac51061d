/*
Package errs provides custom error types and application-level error code constants.

This file defines the CustomError struct, which implements the standard Go error interface
and carries a business code, a user-facing message, the HTTP status observed from the
backend (when there was one) and the underlying cause.
*/
package errs

import (
	"errors"
	"fmt"
	"strings"

	"stompchat/internal/pkg/logx"
)

// CustomError is the error structure used throughout the client.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the user-facing error description.
	Message string

	// Status is the HTTP status returned by the backend, or 0 when no HTTP exchange took place.
	Status int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the standard Go error interface.
func (e *CustomError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "error code %d", e.Code)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *CustomError) Unwrap() error {
	return e.Err
}

// WithStatus returns a copy of the error carrying the given HTTP status.
func (e *CustomError) WithStatus(status int) *CustomError {
	out := *e
	out.Status = status
	return &out
}

// NewError constructs a *CustomError from a predefined error code.
// The optional details are used as printf arguments when the message template has placeholders.
// An unknown code yields ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &CustomError{
			Code:    unknownErr.Code,
			Message: unknownErr.Message,
		}
	}

	customErr := templateErr

	if len(details) > 0 {
		if strings.Contains(customErr.Message, "%") {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else {
			logx.Warn(
				"Details provided for error, but message template has no formatting placeholders. Details ignored.",
				"code", code,
			)
		}
	} else if strings.Contains(customErr.Message, "%") {
		// strip the unfilled placeholder tail, e.g. "Sign-up failed: %s" -> "Sign-up failed"
		if i := strings.Index(customErr.Message, ":"); i > 0 {
			customErr.Message = customErr.Message[:i] + "."
		}
	}

	return &customErr
}

// Wrap constructs a *CustomError from a code and attaches err as its cause.
func Wrap(code int, err error, details ...any) *CustomError {
	customErr := NewError(code, details...)
	customErr.Err = err
	return customErr
}

// IsCode reports whether err, or any error it wraps, is a *CustomError with the given code.
func IsCode(err error, code int) bool {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first *CustomError in err's chain, or ErrUnknown.
func CodeOf(err error) int {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Code
	}
	return ErrUnknown
}
