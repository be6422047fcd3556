package capability

import (
	"errors"
	"fmt"

	"github.com/hostbridge/scene-bridge-go/wire"
)

// Error is a structured handler failure. The executor converts it into an
// error Response carrying the kind and message verbatim; any other error
// returned by a handler is reported as a generic ExecutionError.
type Error struct {
	Kind    wire.ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Errorf builds an *Error with the given kind and formatted message.
func Errorf(kind wire.ErrorKind, format string, a ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...)}
}

// ValidationErrorf builds a ValidationError: the command was recognized but
// its parameters are malformed.
func ValidationErrorf(format string, a ...any) *Error {
	return Errorf(wire.ErrKindValidation, format, a...)
}

// ExecutionErrorf builds an ExecutionError: the handler ran and failed.
func ExecutionErrorf(format string, a ...any) *Error {
	return Errorf(wire.ErrKindExecution, format, a...)
}

// KindOf extracts the error kind from err. Untyped errors classify as
// ExecutionError with their message preserved.
func KindOf(err error) (wire.ErrorKind, string) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, ce.Message
	}
	return wire.ErrKindExecution, err.Error()
}
