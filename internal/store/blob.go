package store

import (
	"context"
	"io"
)

// BlobStore writes a transferred body to durable storage and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
