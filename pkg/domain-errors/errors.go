// Package domainerrors defines the coded error taxonomy shared by all
// modules. Services attach a Code so transports can translate failures
// without inspecting message text.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	// CodeBadRequest marks malformed input that never reached validation
	// (unparseable body, bad identifier syntax).
	CodeBadRequest Code = "bad_request"
	// CodeValidation marks input that parsed but violates a business rule
	// (non-positive amounts, LTV exceeded, overpayment).
	CodeValidation Code = "validation"
	// CodeNotFound marks an unknown loan, auction, or resource.
	CodeNotFound Code = "not_found"
	// CodeState marks an operation against an entity in the wrong state
	// (terminal loan reused, auction already executed, grace period active).
	CodeState Code = "state"
	// CodeOracle marks a stale or invalid price from the oracle collaborator.
	CodeOracle Code = "oracle"
	// CodeInsufficientFunds marks a transfer the custody layer cannot cover.
	CodeInsufficientFunds Code = "insufficient_funds"
	// CodeInternal marks unexpected failures.
	CodeInternal Code = "internal"
)

// Error is a coded domain error with optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a coded error with a static message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. If err already
// carries a code, that code is preserved so callers closest to the failure
// decide the classification.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	if existing := CodeOf(err); existing != "" {
		code = existing
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the code from err, or "" when err is not a domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ToHTTPStatus maps a code to its HTTP response status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeState:
		return http.StatusConflict
	case CodeOracle:
		return http.StatusBadGateway
	case CodeInsufficientFunds:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
