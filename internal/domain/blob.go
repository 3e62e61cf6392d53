package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage. Used by the snapshot archiver to
// push periodic market dumps to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
