// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package failure defines the closed set of error kinds surfaced by the
// assistant core. Every component returns *Error values so that callers can
// branch on Kind without string matching.
package failure

import (
	"errors"
	"fmt"
)

// =============================================================================
// KINDS
// =============================================================================

// Kind categorizes a failure for presentation and exit-code mapping.
type Kind int

const (
	// KindUnknown is never produced by this module; it is what KindOf reports
	// for foreign errors.
	KindUnknown Kind = iota

	// KindAuthFailure means a credential was missing or rejected upstream.
	KindAuthFailure

	// KindQuotaExceeded means the provider refused the request for quota,
	// billing or rate reasons.
	KindQuotaExceeded

	// KindUpstreamMalformed means the provider answered with a body that could
	// not be decoded into a reply.
	KindUpstreamMalformed

	// KindNetworkFailure covers transport errors, timeouts and abandoned calls.
	KindNetworkFailure

	// KindNotFound means an unknown project (or session) identifier.
	KindNotFound

	// KindNoActiveProject means a message arrived with nothing activated.
	KindNoActiveProject

	// KindConfigError means an invalid provider/model pairing or missing setting.
	KindConfigError

	// KindInvalidInput means the caller supplied unusable input, such as an
	// empty prompt or a duplicate project name.
	KindInvalidInput
)

var kindNames = map[Kind]string{
	KindUnknown:           "Unknown",
	KindAuthFailure:       "AuthFailure",
	KindQuotaExceeded:     "QuotaExceeded",
	KindUpstreamMalformed: "UpstreamMalformed",
	KindNetworkFailure:    "NetworkFailure",
	KindNotFound:          "NotFound",
	KindNoActiveProject:   "NoActiveProject",
	KindConfigError:       "ConfigError",
	KindInvalidInput:      "InvalidInput",
}

// String returns the stable name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText lets kinds appear by name in JSON payloads and logs.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// =============================================================================
// ERROR TYPE
// =============================================================================

// Error is the single error type returned across component boundaries.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "store.activate"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a sentinel of the same kind, so that
// errors.Is(err, failure.ErrNotFound) matches any NotFound failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Cause == nil && t.Kind == e.Kind
}

// Sentinel errors for errors.Is checks.
var (
	ErrAuthFailure       = &Error{Kind: KindAuthFailure}
	ErrQuotaExceeded     = &Error{Kind: KindQuotaExceeded}
	ErrUpstreamMalformed = &Error{Kind: KindUpstreamMalformed}
	ErrNetworkFailure    = &Error{Kind: KindNetworkFailure}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrNoActiveProject   = &Error{Kind: KindNoActiveProject}
	ErrConfig            = &Error{Kind: KindConfigError}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
)

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// New creates a failure of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf creates a failure with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying cause.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// =============================================================================
// INSPECTION
// =============================================================================

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsNotFound checks if an error is a NotFound failure.
func IsNotFound(err error) bool { return Is(err, KindNotFound) }

// IsConfig checks if an error is a ConfigError failure.
func IsConfig(err error) bool { return Is(err, KindConfigError) }

// IsAuth checks if an error is an AuthFailure.
func IsAuth(err error) bool { return Is(err, KindAuthFailure) }

// Describe renders "Kind: cause" for user-facing output.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind.String() + ": " + fe.Error()
	}
	return err.Error()
}
