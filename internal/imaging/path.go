package imaging

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"path"
	"strings"
	"time"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// typeExtensions maps accepted content types to file extensions.
var typeExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// RandomSuffix returns n crypto-random base36 characters.
func RandomSuffix(n int) (string, error) {
	var sb strings.Builder
	limit := big.NewInt(int64(len(base36)))
	for i := 0; i < n; i++ {
		v, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("imaging: random suffix: %w", err)
		}
		sb.WriteByte(base36[v.Int64()])
	}
	return sb.String(), nil
}

// Extension picks the object extension from the verified content type.
// The client's filename never contributes.
func Extension(contentType string, recompressed bool) string {
	if recompressed {
		return "jpg"
	}
	if ext, ok := typeExtensions[contentType]; ok {
		return ext
	}
	return "bin"
}

// ContentTypeFor maps a stored object's path back to the type it was
// written with. Anything else is served as an opaque download.
func ContentTypeFor(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	for contentType, e := range typeExtensions {
		if e == ext && contentType != "image/jpg" {
			return contentType
		}
	}
	return "application/octet-stream"
}

// ObjectPath builds {folder}/IMG_{epochMillis}_{suffix}.{ext}.
func ObjectPath(folder string, now time.Time, suffix, ext string) string {
	name := fmt.Sprintf("IMG_%d_%s.%s", now.UnixMilli(), suffix, ext)
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}
