package cards

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // Decoder registration.
	"image/jpeg"
	"image/png"
	"math"
	"strings"

	_ "golang.org/x/image/bmp" // Decoder registration.
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Decoder registration.

	"github.com/maruel/typeimage/internal/storage/blobstore"
)

// Options controls [Convert].
type Options struct {
	// MaxSize bounds both dimensions. Images are never enlarged.
	MaxSize int
	// JPEGQuality applies to JPEG sources only.
	JPEGQuality int
}

// DefaultOptions are the converter defaults.
var DefaultOptions = Options{MaxSize: 384, JPEGQuality: 60}

// Convert builds a flashcard from a word and raw image bytes.
func Convert(word string, data []byte, opts Options) (*Item, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return nil, errors.New("word cannot be empty")
	}
	if len(data) == 0 {
		return nil, errors.New("image is required")
	}
	out, ct, err := Resize(data, opts)
	if err != nil {
		return nil, err
	}
	return &Item{Word: word, Image: blobstore.DataURL(ct, out)}, nil
}

// Resize fits the image within opts.MaxSize keeping the aspect ratio and
// returns the encoded bytes with their content type.
//
// SVG is returned unchanged. JPEG stays JPEG, everything else becomes PNG.
func Resize(data []byte, opts Options) ([]byte, string, error) {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultOptions.MaxSize
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultOptions.JPEGQuality
	}
	if ct := blobstore.DetectContentType(data); ct == "image/svg+xml" {
		return data, ct, nil
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	b := src.Bounds()
	ratio := math.Min(1, math.Min(float64(opts.MaxSize)/float64(b.Dx()), float64(opts.MaxSize)/float64(b.Dy())))
	w := max(1, int(math.Round(float64(b.Dx())*ratio)))
	h := max(1, int(math.Round(float64(b.Dy())*ratio)))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if format == "jpeg" {
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.JPEGQuality}); err != nil {
			return nil, "", fmt.Errorf("failed to encode jpeg: %w", err)
		}
		return buf.Bytes(), "image/jpeg", nil
	}
	if err := png.Encode(&buf, dst); err != nil {
		return nil, "", fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), "image/png", nil
}
