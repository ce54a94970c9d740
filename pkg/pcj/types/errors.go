package types

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind enumerates the error kinds from the error handling design.
type ErrorKind uint8

const (
	ErrKindNone ErrorKind = iota
	ErrKindConfigError
	ErrKindConnectFailed
	ErrKindConnectionLost
	ErrKindMalformedMessage
	ErrKindUnknownGroup
	ErrKindUnknownThread
	ErrKindNoSuchStorage
	ErrKindNoSuchVariable
	ErrKindTypeMismatch
	ErrKindUserException
	ErrKindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindConfigError:
		return "ConfigError"
	case ErrKindConnectFailed:
		return "ConnectFailed"
	case ErrKindConnectionLost:
		return "ConnectionLost"
	case ErrKindMalformedMessage:
		return "MalformedMessage"
	case ErrKindUnknownGroup:
		return "UnknownGroup"
	case ErrKindUnknownThread:
		return "UnknownThread"
	case ErrKindNoSuchStorage:
		return "NoSuchStorage"
	case ErrKindNoSuchVariable:
		return "NoSuchVariable"
	case ErrKindTypeMismatch:
		return "TypeMismatch"
	case ErrKindUserException:
		return "UserException"
	case ErrKindTimeout:
		return "Timeout"
	default:
		return "None"
	}
}

// RuntimeError is the concrete error type carried across the runtime
// and the wire. A UserException built with NewUserException also
// carries a stack captured with github.com/pkg/errors; the networker's
// handler recovery does not build one, it only logs the panic.
type RuntimeError struct {
	Kind    ErrorKind
	Message string
	// Stack holds a formatted stack trace when Kind == ErrKindUserException.
	Stack string
}

func (e *RuntimeError) Error() string {
	if e.Stack != "" {
		return fmt.Sprintf("%s: %s\n%s", e.Kind, e.Message, e.Stack)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a RuntimeError of the given kind.
func NewError(kind ErrorKind, format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewUserException wraps a handler panic/error with its captured
// stack, using pkg/errors so the stack survives being flattened to a
// string for the wire.
func NewUserException(cause error) *RuntimeError {
	wrapped := errors.WithStack(cause)
	return &RuntimeError{
		Kind:    ErrKindUserException,
		Message: cause.Error(),
		Stack:   fmt.Sprintf("%+v", wrapped),
	}
}

// Is reports whether err is a RuntimeError of the given kind, so
// callers can do errors.Is-style checks without a type assertion at
// every call site.
func Is(err error, kind ErrorKind) bool {
	re, ok := err.(*RuntimeError)
	return ok && re.Kind == kind
}

var (
	ErrUnknownGroup    = NewError(ErrKindUnknownGroup, "unknown group")
	ErrUnknownThread   = NewError(ErrKindUnknownThread, "unknown thread")
	ErrNoSuchStorage   = NewError(ErrKindNoSuchStorage, "no such storage")
	ErrNoSuchVariable  = NewError(ErrKindNoSuchVariable, "no such variable")
	ErrTypeMismatch    = NewError(ErrKindTypeMismatch, "type mismatch")
	ErrConnectionLost  = NewError(ErrKindConnectionLost, "connection lost")
	ErrMalformed       = NewError(ErrKindMalformedMessage, "malformed message")
	ErrTimeout         = NewError(ErrKindTimeout, "timeout")
	// ErrUnsupportedProtocol is returned when a Hello's protocol
	// version is not compatible with node 0's build.
	ErrUnsupportedProtocol = NewError(ErrKindConnectFailed, "unsupported protocol version")
)
