package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure so callers can pick the right reaction:
// fail fast, retry with backoff, show a message, or degrade to a placeholder.
type Kind int

const (
	KindConfiguration Kind = iota // missing session data; fatal, not retried
	KindTransport                 // channel/network drop; retried with backoff
	KindValidation                // OTP mismatch, malformed payload; no retry
	KindLocation                  // location services unavailable; user remediation
	KindFormat                    // unparseable timestamp; degrade to placeholder
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindTransport:
		return "transport"
	case KindValidation:
		return "validation"
	case KindLocation:
		return "location"
	case KindFormat:
		return "format"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	// Remediation names the user-facing recovery action, e.g. "open settings".
	// Only set for KindLocation.
	Remediation string
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

func Configuration(msg string) error {
	return &Error{Kind: KindConfiguration, Msg: msg}
}

func Transport(cause error, msg string) error {
	return &Error{Kind: KindTransport, Msg: msg, cause: cause}
}

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

func Location(msg, remediation string) error {
	return &Error{Kind: KindLocation, Msg: msg, Remediation: remediation}
}

func Format(cause error, msg string) error {
	return &Error{Kind: KindFormat, Msg: msg, cause: cause}
}

// IsKind reports whether err (or anything it wraps) carries the given kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
