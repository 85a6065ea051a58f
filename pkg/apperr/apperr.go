// Package apperr defines the coded domain error shared by the enrolment,
// payment and membership services. Callers match on the code with errors.Is
// against the exported sentinel values, or extract it with CodeOf.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeAlreadyEnrolled          Code = "ALREADY_ENROLLED"
	CodeNotEnrolled              Code = "NOT_ENROLLED"
	CodeUnsupportedState         Code = "UNSUPPORTED_STATE"
	CodeIncompleteUserData       Code = "INCOMPLETE_USER_DATA"
	CodeAcceptTermsMissing       Code = "ACCEPT_TERMS_MISSING"
	CodeUnexpectedPaymentState   Code = "UNEXPECTED_PAYMENT_STATE"
	CodeUnexpectedPaymentMode    Code = "UNEXPECTED_PAYMENT_MODE"
	CodeUnexpectedConfirmation   Code = "UNEXPECTED_CONFIRMATION"
	CodeUnexpectedMembershipType Code = "UNEXPECTED_MEMBERSHIP_TYPE"
	CodeUnknownUser              Code = "UNKNOWN_USER"
	CodeUnknownPayment           Code = "UNKNOWN_PAYMENT"
	CodeGatewayException         Code = "GATEWAY_EXCEPTION"
)

// Error carries a machine-readable code plus a human message. The HTTP layer
// maps codes to statuses; the core only exposes code and message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap preserves the remote/lower-level error as the cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same code, so sentinel comparisons like
// errors.Is(err, apperr.New(apperr.CodeUnknownUser, "")) work regardless of
// message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// CodeOf returns the domain code carried by err, or "" when err is not a
// domain error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}
