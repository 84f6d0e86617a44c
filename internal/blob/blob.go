// Package blob stores uploaded files and hands back durable URLs.
package blob

import (
	"context"
	"errors"
)

var (
	// ErrUnauthorized is returned when the backend refuses the write.
	ErrUnauthorized = errors.New("blob: unauthorized")
	// ErrCanceled is returned when the upload context ends mid-transfer.
	ErrCanceled = errors.New("blob: canceled")
	// ErrRetryLimitExceeded is returned after MaxRetries transient failures.
	ErrRetryLimitExceeded = errors.New("blob: retry limit exceeded")
	// ErrQuotaExceeded is returned when the store is out of space.
	ErrQuotaExceeded = errors.New("blob: quota exceeded")
	// ErrInvalidPath is returned for paths or URLs outside the bucket.
	ErrInvalidPath = errors.New("blob: invalid path")
	// ErrNotFound is returned when deleting or opening a missing object.
	ErrNotFound = errors.New("blob: not found")
)

// ProgressFunc receives bytes transferred so far out of total.
type ProgressFunc func(transferred, total int64)

// Store is a destination for uploaded files.
type Store interface {
	// Upload writes data at path and returns its URL. onProgress may be nil.
	Upload(ctx context.Context, path string, data []byte, contentType string, onProgress ProgressFunc) (string, error)
	// Delete removes the object a previous Upload returned url for.
	Delete(ctx context.Context, url string) error
}
