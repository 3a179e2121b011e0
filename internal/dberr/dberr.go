package dberr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how it is surfaced to clients
type Kind uint8

const (
	Internal Kind = iota
	TypeMismatch
	InvalidArgument
	InvalidPath
	NotAuthorized
	Protocol
	Persistence
	NotFound
)

// Tag returns the leading word of the RESP error reply for this kind
func (k Kind) Tag() string {
	switch k {
	case TypeMismatch:
		return "WRONGTYPE"
	case NotAuthorized:
		return "NOAUTH"
	default:
		return "ERR"
	}
}

func (k Kind) String() string {
	switch k {
	case TypeMismatch:
		return "TypeMismatch"
	case InvalidArgument:
		return "InvalidArgument"
	case InvalidPath:
		return "InvalidPath"
	case NotAuthorized:
		return "NotAuthorized"
	case Protocol:
		return "ProtocolError"
	case Persistence:
		return "PersistenceError"
	case NotFound:
		return "NotFound"
	default:
		return "Internal"
	}
}

// Error is the error type shared by every layer of the engine
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Reply renders the error the way it is written on the wire, without the '-' prefix
func (e *Error) Reply() string {
	return e.Kind.Tag() + " " + e.Error()
}

var (
	ErrTypeMismatch  = New(TypeMismatch, "Operation against a key holding the wrong kind of value")
	ErrNotFound      = New(NotFound, "no such key")
	ErrNotAuthorized = New(NotAuthorized, "Authentication required.")
	ErrSyntax        = New(InvalidArgument, "syntax error")
	ErrNotInteger    = New(InvalidArgument, "value is not an integer or out of range")
	ErrNotFloat      = New(InvalidArgument, "value is not a valid float")
	ErrInvalidPath   = New(InvalidPath, "invalid path")
	ErrProtocol      = New(Protocol, "Protocol error")
	ErrPersistence   = New(Persistence, "persistence failure")
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// WrongArgs is the arity error reply used by the dispatcher and handlers
func WrongArgs(cmd string) *Error {
	return Newf(InvalidArgument, "wrong number of arguments for '%s' command", cmd)
}

// KindOf returns the kind of err, or Internal if err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
