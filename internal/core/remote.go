package core

import (
	"context"
	"io"
)

// Lister returns the file names currently present under a remote directory.
// Names are bare (no directory component).
type Lister interface {
	List(ctx context.Context, dir string) ([]string, error)
}

// Transferer moves single remote files.
type Transferer interface {
	// Fetch streams the remote file at path into w.
	Fetch(ctx context.Context, path string, w io.Writer) error
	// Delete removes the remote file at path.
	Delete(ctx context.Context, path string) error
	// Size returns the length in bytes of the remote file at path.
	Size(ctx context.Context, path string) (int64, error)
}

// RemoteClient is the full capability a pass needs from a backend.
type RemoteClient interface {
	Lister
	Transferer
	io.Closer
}
