// Package vaulterr defines the error kinds surfaced across the storage
// engine and a single error type that carries one of them.
package vaulterr

import (
	"errors"
	"fmt"
)

// Kind is one of the engine's enumerated error kinds.
type Kind string

const (
	KindAlreadyExists         Kind = "ALREADY_EXISTS"
	KindNotFound              Kind = "NOT_FOUND"
	KindPassword              Kind = "PASSWORD"
	KindLocked                Kind = "LOCKED"
	KindNotLocked             Kind = "NOT_LOCKED"
	KindCorrupt               Kind = "CORRUPT"
	KindUnsupportedStore      Kind = "UNSUPPORTED_STORE"
	KindUnsupportedRepo       Kind = "UNSUPPORTED_REPO"
	KindInvalidSavepoint      Kind = "INVALID_SAVEPOINT"
	KindInvalidObject         Kind = "INVALID_OBJECT"
	KindTransactionInProgress Kind = "TRANSACTION_IN_PROGRESS"
	KindInvalidData           Kind = "INVALID_DATA"
	KindInvalidPath           Kind = "INVALID_PATH"
	KindNotEmpty              Kind = "NOT_EMPTY"
	KindNotDirectory          Kind = "NOT_DIRECTORY"
	KindNotFile               Kind = "NOT_FILE"
	KindFileType              Kind = "FILE_TYPE"
	KindSerialize             Kind = "SERIALIZE"
	KindDeserialize           Kind = "DESERIALIZE"
	KindIo                    Kind = "IO"
	KindStore                 Kind = "STORE"
)

// Error is the engine's single error type. Every user-visible failure is
// reported through it so callers can dispatch on Kind via errors.As.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an *Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
