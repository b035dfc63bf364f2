package staging

import (
	"context"
	"io"
)

//go:generate mockery -name Transport

// Transport moves file content onto the staging host. The chunk uploader
// drives it through a fixed sequence: query the size of the final file,
// ensure its directory exists, then repeatedly stage a chunk at a temporary
// path and splice it onto the final file. One Transport is shared by all
// upload workers, so implementations must be safe for concurrent use.
type Transport interface {
	// QuerySize returns the length in bytes of the remote file at path, or
	// zero if no file exists there.
	QuerySize(ctx context.Context, path string) (int64, error)

	// EnsureDir creates dir and any missing parents on the staging host.
	EnsureDir(ctx context.Context, dir string) error

	// PutTemp replaces the remote file at path with the bytes read from
	// chunk.
	PutTemp(ctx context.Context, path string, chunk io.Reader) error

	// AppendAndCleanup appends the remote file at tmpPath onto the file at
	// finalPath and removes tmpPath. When truncate is set the final file is
	// overwritten instead of appended to.
	AppendAndCleanup(ctx context.Context, tmpPath, finalPath string, truncate bool) error

	// RemoveTemp deletes the remote file at path. A missing file is not an
	// error.
	RemoveTemp(ctx context.Context, path string) error

	// Close tears down the connection.
	Close() error
}
