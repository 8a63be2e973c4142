package core

import (
	"context"
	"io"
	"time"
)

// Storage is the object store holding firmware binaries.
type Storage interface {
	// GeneratePresignedURL returns a time-limited download URL for objectKey.
	GeneratePresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)

	// PutObject uploads size bytes from r under objectKey.
	PutObject(ctx context.Context, objectKey string, r io.Reader, size int64) error
}
