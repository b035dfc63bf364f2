package errors

import (
	goerrors "errors"
	"fmt"
)

// New returns an error with the given message. It's a drop-in replacement for
// the standard library's errors.New, re-exported so that callers only need to
// import one errors package.
func New(msg string) error {
	return goerrors.New(msg)
}

// ContextError annotates an error with the operation that produced it.
// Contexts accumulate as the error travels up the call stack, so the final
// message reads from the outermost operation to the root cause.
type ContextError struct {
	Context string
	Err     error
}

func (err ContextError) Error() string {
	return fmt.Sprintf("%s: %s", err.Context, err.Err)
}

// Unwrap makes ContextError compatible with the standard library's errors.Is
// and errors.As.
func (err ContextError) Unwrap() error {
	return err.Err
}

// WithContext wraps err with a description of the operation that failed.
func WithContext(err error, context string) error {
	return ContextError{Context: context, Err: err}
}

// RootCause returns the innermost error in a chain of ContextErrors. It's
// used to make decisions based on typed errors without the surrounding
// context getting in the way.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(ContextError)
		if !ok {
			return err
		}
		err = ctxErr.Err
	}
}

// FriendlyError is an error whose message is meant to be shown to users
// directly, without any wrapping context.
type FriendlyError struct {
	Message string
}

func (err FriendlyError) Error() string {
	return err.Message
}

// FriendlyMessage implements the interface checked by the CLI's fatal error
// handler.
func (err FriendlyError) FriendlyMessage() string {
	return err.Message
}

// NewFriendlyError creates a FriendlyError according to the format specifier.
func NewFriendlyError(format string, args ...interface{}) FriendlyError {
	return FriendlyError{Message: fmt.Sprintf(format, args...)}
}

// Friendly is implemented by errors that carry a message fit for direct
// display. HandleFatalError prints the friendly message rather than the raw
// error chain.
type Friendly interface {
	FriendlyMessage() string
}
