package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not part of a definition
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when every guarded transition rejects the subject
	ErrGuardFailed = errors.New("guard condition failed")
)

// Kind classifies a workflow failure. Callers branch on the kind, never on
// the message.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindTerminalState Kind = "terminal_state"
	KindInternal      Kind = "internal"
)

// Error is a typed workflow failure carrying its kind and context
type Error struct {
	Kind      Kind
	Op        string
	RequestID string
	Detail    string
}

// Sentinels for errors.Is matching by kind
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrTerminalState = &Error{Kind: KindTerminalState}
)

// NewError creates a workflow error of the given kind
func NewError(kind Kind, op, requestID, format string, args ...interface{}) *Error {
	return &Error{
		Kind:      kind,
		Op:        op,
		RequestID: requestID,
		Detail:    fmt.Sprintf(format, args...),
	}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.RequestID != "" {
		b.WriteString(" request=")
		b.WriteString(e.RequestID)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Is matches any workflow error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of a workflow error, or KindInternal for anything else
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindInternal
}
