package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeDuplicateEnvironment  ErrorCode = "DUPLICATE_ENVIRONMENT"
	CodeNotFound              ErrorCode = "NOT_FOUND"
	CodeInUse                 ErrorCode = "IN_USE"
	CodeNameCollision         ErrorCode = "NAME_COLLISION"
	CodeNotValidated          ErrorCode = "NOT_VALIDATED"
	CodeSchemaMalformed       ErrorCode = "SCHEMA_MALFORMED"
	CodeDescriptionInadequate ErrorCode = "DESCRIPTION_INADEQUATE"
	CodeSchemaDrift           ErrorCode = "SCHEMA_DRIFT"
	CodeInsufficientCoverage  ErrorCode = "INSUFFICIENT_COVERAGE"
	CodeAvailabilityFailure   ErrorCode = "AVAILABILITY_FAILURE"
	CodeAvailabilityTimeout   ErrorCode = "AVAILABILITY_TIMEOUT"
	CodeDescriptionMismatch   ErrorCode = "DESCRIPTION_MISMATCH"
	CodeUnsupportedCorrection ErrorCode = "UNSUPPORTED_CORRECTION"
	CodeProvisionFailure      ErrorCode = "PROVISION_FAILURE"
	CodeFixCyclesExhausted    ErrorCode = "FIX_CYCLES_EXHAUSTED"
	CodeInvalidArgument       ErrorCode = "INVALID_ARGUMENT"
	CodeCanceled              ErrorCode = "CANCELED"
	CodeInternal              ErrorCode = "INTERNAL"
)

type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
	Meta    map[string]string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

// Wrap returns an error carrying code and op around err, preserving an
// existing *Error code in the chain. A nil err yields an untyped nil so
// tail-returning Wrap from a function with a nil error stays nil for
// the caller.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		return &Error{
			Code:    existing.Code,
			Op:      op,
			Message: existing.Message,
			Cause:   existing,
			Meta:    existing.Meta,
		}
	}
	return E(code, op, "", err)
}

// CodeOf extracts the ErrorCode from err, or CodeInternal when err does
// not carry one.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
