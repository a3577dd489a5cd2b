package storage

import (
	"context"
	"io"
	"time"
)

// PutOptions carries metadata for an object upload.
type PutOptions struct {
	ContentType string
	// OriginalFilename is preserved as object metadata so the stored key
	// can stay opaque.
	OriginalFilename string
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// Storage is the object store used for uploaded documents.
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) (*ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)
	// Delete is idempotent: removing a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// PresignGet returns a URL from which the object can be fetched
	// without credentials until expiry.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
