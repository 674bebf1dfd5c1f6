package object

import (
	"context"
	"io"
)

// ObjectStore saves and retrieves binary objects by key.
type ObjectStore interface {
	Put(ctx context.Context, key string, contentType string, r io.Reader) (sizeBytes int64, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Location describes where a key lives, e.g. s3://bucket/prefix/key.
	Location(key string) string
}
