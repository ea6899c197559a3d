// Package storage keeps rendered documents, on local disk or in an
// S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when no object has the given name.
var ErrNotFound = errors.New("object not found")

// Store is a flat namespace of named blobs.
type Store interface {
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, name string) (io.ReadCloser, Info, error)
	Delete(ctx context.Context, name string) error
}

// Info describes a stored object.
type Info struct {
	Size        int64
	ContentType string
	ModTime     time.Time
}
