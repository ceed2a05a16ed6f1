// Package domainerrors defines the coded error type shared by services and the
// HTTP layer. Stores return sentinel errors; services translate them into one of
// these codes so handlers never need to know where a failure came from.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain failure. The string value is what clients see in
// the "error" field of a JSON error envelope.
type Code string

const (
	// CodeUnauthorized covers bad passwords, bad one-time codes and bad session tokens.
	CodeUnauthorized Code = "unauthorized"
	// CodeExpired covers a one-time code presented after its expiry.
	CodeExpired Code = "expired_credential"
	// CodeForbidden covers ACL and approval-state denials.
	CodeForbidden Code = "forbidden"
	CodeNotFound  Code = "not_found"
	// CodeConflict covers uniqueness violations (duplicate access request, duplicate identity).
	CodeConflict Code = "conflict"
	// CodeInvalidState covers transitions from a terminal state.
	CodeInvalidState Code = "invalid_state"
	// CodeIntegrity covers decryption/padding failures and digest mismatches.
	CodeIntegrity Code = "integrity_error"
	// CodeSignatureInvalid covers signatures that do not verify.
	CodeSignatureInvalid Code = "signature_invalid"
	// CodeRateLimited covers identities locked out after repeated failures.
	CodeRateLimited Code = "rate_limited"
	// CodeFormat covers malformed verification tokens.
	CodeFormat Code = "format_error"

	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_error"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
)

// Error is a coded domain error. Details carries audit context (role, resource,
// action, document id) that is logged but never written to clients.
type Error struct {
	Code    Code
	Message string
	Details map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code and message, which lets tests
// use require.ErrorIs(err, dErrors.New(code, msg)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithDetails returns a copy of e carrying the given audit context.
func (e *Error) WithDetails(kv ...string) *Error {
	out := *e
	out.Details = make(map[string]string, len(e.Details)+len(kv)/2)
	for k, v := range e.Details {
		out.Details[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out.Details[kv[i]] = kv[i+1]
	}
	return &out
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if errors.As(err, &de) {
			if de.Code == code {
				return true
			}
			err = de.Err
			continue
		}
		return false
	}
	return false
}

// Is is shorthand for HasCode, kept for handler call sites.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of the outermost *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// DetailsOf returns the audit details of the outermost *Error in err's chain.
func DetailsOf(err error) map[string]string {
	var de *Error
	if errors.As(err, &de) {
		return de.Details
	}
	return nil
}
