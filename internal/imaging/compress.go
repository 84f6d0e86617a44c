package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// CompressThreshold is the size above which images are recompressed.
	CompressThreshold = 1_000_000
	MaxWidth          = 1920
	MaxHeight         = 1080
	JPEGQuality       = 80
)

// ErrDecode is returned when an image over the threshold cannot be decoded.
var ErrDecode = errors.New("imaging: decode failed")

// Compressed is the payload to upload.
type Compressed struct {
	Data        []byte
	ContentType string
	// Recompressed is true when Data was re-encoded as JPEG.
	Recompressed bool
}

// Compress re-encodes images larger than CompressThreshold as JPEG, scaled
// down to fit MaxWidth×MaxHeight. Smaller images pass through. When the
// re-encoded image is not smaller and no scaling was needed, the original
// is kept.
func Compress(data []byte, contentType string) (Compressed, error) {
	orig := Compressed{Data: data, ContentType: contentType}
	if len(data) <= CompressThreshold {
		return orig, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Compressed{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	b := src.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), MaxWidth, MaxHeight)
	scaled := w != b.Dx() || h != b.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha; transparent pixels become white.
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if scaled {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	} else {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return Compressed{}, fmt.Errorf("imaging: encode jpeg: %w", err)
	}
	if !scaled && buf.Len() >= len(data) {
		return orig, nil
	}
	return Compressed{Data: buf.Bytes(), ContentType: "image/jpeg", Recompressed: true}, nil
}

// Fit scales w×h down to fit within maxW×maxH, preserving aspect ratio.
// Dimensions already inside the box are returned unchanged.
func Fit(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	if w <= maxW && h <= maxH {
		return w, h
	}
	// Compare w/maxW with h/maxH without floating point.
	if w*maxH >= h*maxW {
		nh := h * maxW / w
		if nh < 1 {
			nh = 1
		}
		return maxW, nh
	}
	nw := w * maxH / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxH
}
