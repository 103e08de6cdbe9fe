package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures so the HTTP boundary can map them to
// a transport status without string matching.
type ErrorKind string

const (
	// KindUnauthorized covers unknown keys and suspended (inactive) keys
	KindUnauthorized ErrorKind = "unauthorized"
	// KindRateLimited means the key's token bucket is exhausted
	KindRateLimited ErrorKind = "rate_limited"
	// KindValidation covers malformed filters and batch ceiling violations
	KindValidation ErrorKind = "validation_error"
	// KindNotFound means a referenced image or username does not exist
	KindNotFound ErrorKind = "not_found"
	// KindAlreadyExists means a unique constraint (username, filename) was hit
	KindAlreadyExists ErrorKind = "already_exists"
	// KindUpstream means the metadata index could not be queried
	KindUpstream ErrorKind = "upstream_unavailable"
)

// Error is the structured failure type returned by engine components.
// Kind + Message give the boundary layer enough to map to a status code;
// no kind is ever swallowed on the way up.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Unauthorized reports an unknown or inactive key.
func Unauthorized(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// RateLimited reports an exhausted token bucket.
func RateLimited(format string, args ...any) *Error {
	return &Error{Kind: KindRateLimited, Message: fmt.Sprintf(format, args...)}
}

// Invalid reports a validation failure.
func Invalid(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing image or username.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// AlreadyExists reports a uniqueness conflict.
func AlreadyExists(format string, args ...any) *Error {
	return &Error{Kind: KindAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a metadata index failure. The cause propagates unchanged;
// retry policy, if any, belongs to the collaborator behind the index.
func Upstream(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindUpstream, Message: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf extracts the kind from an error chain, or "" if the chain carries
// no engine error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
