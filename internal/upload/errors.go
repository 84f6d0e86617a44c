package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zulandar/plandala/internal/blob"
	"github.com/zulandar/plandala/internal/imaging"
)

// FileError records why one file in a batch failed.
type FileError struct {
	Index int
	Name  string
	Err   error
}

func (e FileError) Error() string {
	return fmt.Sprintf("upload: %s: %v", e.Name, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}

// Message is the user-facing description of the failure.
func (e FileError) Message() string {
	return Describe(e.Err)
}

// BatchError is returned when every file in a non-empty batch failed.
type BatchError struct {
	Total    int
	Failures []FileError
}

func (e *BatchError) Error() string {
	if len(e.Failures) == 1 {
		return e.Failures[0].Message()
	}
	return fmt.Sprintf("all %d uploads failed: %s", e.Total, e.Failures[0].Message())
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Describe translates an upload error into a user-facing message.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var ve *imaging.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Message()
	case errors.Is(err, ErrStalled), errors.Is(err, context.DeadlineExceeded):
		return "Upload timed out, please try again"
	case errors.Is(err, blob.ErrUnauthorized):
		return "You don't have permission to upload files"
	case errors.Is(err, blob.ErrCanceled), errors.Is(err, context.Canceled):
		return "Upload was cancelled"
	case errors.Is(err, blob.ErrRetryLimitExceeded):
		return "Upload failed after multiple retries, check your connection"
	case errors.Is(err, blob.ErrQuotaExceeded):
		return "Storage quota exceeded"
	default:
		return "Upload failed: " + strings.TrimPrefix(err.Error(), "upload: ")
	}
}
