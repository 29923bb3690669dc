package engine

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures so the HTTP boundary can translate them
// into status codes without inspecting component internals.
type Kind string

const (
	KindConfig              Kind = "config_error"
	KindBadPhone            Kind = "bad_phone"
	KindBadAmount           Kind = "bad_amount"
	KindExceedsRemaining    Kind = "amount_exceeds_remaining"
	KindNotFound            Kind = "not_found"
	KindProviderUnreachable Kind = "provider_unreachable"
	KindProviderRejected    Kind = "provider_rejected"
	KindInvalidTransition   Kind = "invalid_transition"
	KindOverbooked          Kind = "overbooked"
	KindDriftDetected       Kind = "drift_detected"
	KindInternal            Kind = "internal"
)

// Error carries an error kind plus optional provider response details.
type Error struct {
	Kind    Kind
	Code    string // provider ResponseCode / ResultCode, when relevant
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Code != "" && e.Err != nil:
		return fmt.Sprintf("%s [%s]: %s: %v", e.Kind, e.Code, e.Message, e.Err)
	case e.Code != "":
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Rejected builds a provider-rejection error carrying the provider's own
// response code and description.
func Rejected(code, desc string) *Error {
	return &Error{Kind: KindProviderRejected, Code: code, Message: desc}
}

// KindOf extracts the kind from err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is an engine error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
