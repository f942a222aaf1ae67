package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Kind is a stable, machine-readable error category surfaced to API
// clients alongside a human-readable message.
type Kind string

const (
	KindAuthRequired       Kind = "AuthRequired"
	KindForbidden          Kind = "Forbidden"
	KindNotFound           Kind = "NotFound"
	KindInvalidFormat      Kind = "InvalidFormat"
	KindInvalidDomainName  Kind = "InvalidDomainName"
	KindInvalidCredentials Kind = "InvalidCredentials"
	KindAlreadyTaken       Kind = "AlreadyTaken"
	KindExternalService    Kind = "ExternalServiceError"
	KindInternal           Kind = "Internal"
)

// Error carries a Kind plus a client-safe message. The wrapped cause is
// for logs only and never serialized.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an Error without a cause
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error around a cause
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from an error chain, defaulting to Internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsDuplicateKey reports whether err is a unique-constraint violation.
// GORM translates these for postgres; the modernc sqlite connection used
// in development bypasses the driver's translation, so the message is
// checked as a fallback.
func IsDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

// MessageOf extracts the client-safe message from an error chain. Unknown
// errors map to a generic message so internals never reach the client.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "unexpected internal error"
}
