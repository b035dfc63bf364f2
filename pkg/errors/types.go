package errors

import (
	"fmt"
)

// ErrCanceled is returned by operations that stopped because the surrounding
// pass was canceled. It is not a failure: tasks that return it are left in a
// resumable state.
var ErrCanceled = New("operation canceled")

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// StructureError represents a local directory hierarchy that doesn't match
// the configured folder schema. It aborts the current scan pass and is never
// retried.
type StructureError struct {
	Path   string
	Reason string
}

func (err StructureError) Error() string {
	return fmt.Sprintf("invalid folder structure at %q: %s", err.Path, err.Reason)
}

// NotFoundError represents a remote lookup that matched nothing. It is a
// normal outcome for identity resolution, distinct from transport failures.
type NotFoundError struct {
	Kind string
	Key  string
}

func (err NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", err.Kind, err.Key)
}

// AmbiguousError represents a remote lookup that matched more than one
// record. Callers must not silently pick one.
type AmbiguousError struct {
	Kind  string
	Key   string
	Count int
}

func (err AmbiguousError) Error() string {
	return fmt.Sprintf("%s %q matched %d records", err.Kind, err.Key, err.Count)
}

// TransportError represents a network-level failure: a timeout, a non-2xx
// HTTP response, or a remote command exiting non-zero. Upload operations
// retry these up to the configured budget; read-only validation queries
// surface them immediately.
type TransportError struct {
	Op  string
	Err error
}

func (err TransportError) Error() string {
	return fmt.Sprintf("%s: %s", err.Op, err.Err)
}

func (err TransportError) Unwrap() error {
	return err.Err
}

// NewTransportError wraps err as a TransportError for the given operation.
func NewTransportError(op string, err error) error {
	return TransportError{Op: op, Err: err}
}

// IsTransport reports whether the root cause of err is a TransportError.
func IsTransport(err error) bool {
	_, ok := RootCause(err).(TransportError)
	return ok
}

// IsNotFound reports whether the root cause of err is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := RootCause(err).(NotFoundError)
	return ok
}

// IsCanceled reports whether the root cause of err is ErrCanceled.
func IsCanceled(err error) bool {
	return RootCause(err) == ErrCanceled
}
