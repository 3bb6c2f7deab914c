// Package blobstore abstracts where a persisted multi-index lives: a local
// directory, an S3 bucket or a MinIO deployment. The multi-index storage
// layer reads top- and sub-tree files through a Store, so out-of-core query
// streams can run against cluster-shared object storage.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// errors.Is(err, ErrNotFound). The default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction for reading and writing immutable blobs.
type Store interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Create creates a blob for writing. The blob becomes visible when the
	// returned writer is closed without error.
	Create(ctx context.Context, name string) (io.WriteCloser, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	io.ReaderAt
	io.Closer
	// Size returns the size of the blob in bytes.
	Size() int64
}
