// Package apperr provides the error taxonomy shared across MapaLinear's
// services. It is the domain equivalent of a tool-transport error type: no
// package here knows about HTTP routers or RPC transports, only about
// classifying failures so callers can branch on them (retry, skip, abort).
package apperr

import "fmt"

// Code enumerates the error classes a pipeline stage can branch on.
type Code string

const (
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeNotFound            Code = "NOT_FOUND"
	CodeSystemicFailure     Code = "SYSTEMIC_FAILURE"
	CodeInternal            Code = "INTERNAL"
)

// Error is a classified application error with optional operator guidance.
type Error struct {
	Code     Code
	Message  string
	Guidance string
	Err      error
}

func (e *Error) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("%s: %s. %s", e.Code, e.Message, e.Guidance)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap classifies an existing error under code, preserving it for errors.Is/As.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithGuidance attaches operator-facing guidance text.
func (e *Error) WithGuidance(guidance string) *Error {
	e.Guidance = guidance
	return e
}

// Service classifies a failure from an external service by HTTP status code,
// mirroring the teacher's core.ServiceError status-to-guidance mapping.
func Service(service string, statusCode int, message string) *Error {
	var code Code
	var guidance string

	switch {
	case statusCode == 429:
		code = CodeRateLimited
		guidance = "the service is rate-limited, back off and retry"
	case statusCode == 408 || statusCode == 504:
		code = CodeProviderUnavailable
		guidance = "the request timed out"
	case statusCode == 400:
		code = CodeInvalidInput
		guidance = "the request was rejected as invalid"
	case statusCode >= 500:
		code = CodeProviderUnavailable
		guidance = "the upstream service failed, this is likely transient"
	default:
		code = CodeProviderUnavailable
		guidance = "the upstream service did not return a usable response"
	}

	return New(code, fmt.Sprintf("%s: %s", service, message)).WithGuidance(guidance)
}

// IsTransient reports whether err represents a failure that is generally
// safe to retry against another endpoint or accept as a miss, as opposed to
// one that should abort the pipeline outright.
func IsTransient(err error) bool {
	var ae *Error
	if !asError(err, &ae) {
		return false
	}
	switch ae.Code {
	case CodeProviderUnavailable, CodeRateLimited:
		return true
	default:
		return false
	}
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
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
