// Package imaging validates, sniffs, and recompresses uploaded images and
// builds their storage paths.
package imaging

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxFileSize is the largest accepted upload.
const MaxFileSize = 5 * 1024 * 1024

// allowedTypes lists MIME types accepted for upload.
var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Reason identifies why a file failed validation.
type Reason string

const (
	ReasonInvalidType Reason = "invalid_type"
	ReasonTooLarge    Reason = "too_large"
)

// ValidationError reports a file rejected before upload.
type ValidationError struct {
	Name   string
	Reason Reason
}

func (e *ValidationError) Error() string {
	return e.Message()
}

// Message is the user-facing explanation.
func (e *ValidationError) Message() string {
	switch e.Reason {
	case ReasonTooLarge:
		return "File size too large. Maximum size is 5MB"
	default:
		return "Invalid file type. Please upload an image (JPEG, PNG, GIF, WebP)"
	}
}

// DetectType returns the declared content type when it is set, otherwise
// the type sniffed from data.
func DetectType(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return mimetype.Detect(data).String()
}

// Validate checks the content type and size. contentType should already
// be resolved with DetectType.
func Validate(name, contentType string, size int64) error {
	if !allowedTypes[contentType] {
		return &ValidationError{Name: name, Reason: ReasonInvalidType}
	}
	if size > MaxFileSize {
		return &ValidationError{Name: name, Reason: ReasonTooLarge}
	}
	return nil
}

// VerifyContent sniffs data and rejects it unless the bytes are the
// accepted image type contentType claims. It returns the sniffed type.
func VerifyContent(name, contentType string, data []byte) (string, error) {
	m := mimetype.Detect(data)
	if !allowedTypes[m.String()] || !m.Is(canonicalType(contentType)) {
		return "", &ValidationError{Name: name, Reason: ReasonInvalidType}
	}
	return m.String(), nil
}

func canonicalType(contentType string) string {
	if contentType == "image/jpg" {
		return "image/jpeg"
	}
	return contentType
}
