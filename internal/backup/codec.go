// Package backup serializes the whole collection into one JSON document and
// merges such a document back into the on-device state.
package backup

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif" // Decoder registration.
	"image/jpeg"
	_ "image/png" // Decoder registration.
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	_ "golang.org/x/image/bmp"  // Decoder registration.
	_ "golang.org/x/image/webp" // Decoder registration.

	"github.com/maruel/typeimage/internal/storage"
	"github.com/maruel/typeimage/internal/storage/blobstore"
	"github.com/maruel/typeimage/internal/storage/meta"
)

// Version is the document version written by [Encode].
const Version = 1

// DefaultQuality is the JPEG quality of embedded images.
const DefaultQuality = 75

// ErrNoStaging is returned by [WriteFileAtomic] when no staging file can be
// created next to the target.
var ErrNoStaging = errors.New("cannot create staging file")

// Document is a self-contained snapshot of the collection.
type Document struct {
	Version    int               `json:"version" jsonschema:"description=Format version"`
	CreatedAt  string            `json:"createdAt" jsonschema:"description=RFC 3339 creation time"`
	Categories []*meta.Category  `json:"categories"`
	Words      []*meta.Word      `json:"words"`
	Images     map[string]string `json:"images" jsonschema:"description=Image identifier to base64 data URL (JPEG or SVG)"`
}

// Loader reads images for [Encode].
type Loader interface {
	Load(ctx context.Context, id string) (*blobstore.Ref, error)
}

type encodeOptions struct {
	quality int
	now     func() time.Time
}

// EncodeOption configures [Encode].
type EncodeOption func(*encodeOptions)

// WithQuality sets the JPEG quality, 1 to 100.
func WithQuality(q int) EncodeOption {
	return func(o *encodeOptions) {
		if q >= 1 && q <= 100 {
			o.quality = q
		}
	}
}

// WithClock overrides the creation time source.
func WithClock(now func() time.Time) EncodeOption {
	return func(o *encodeOptions) {
		o.now = now
	}
}

// Encode builds a document from the current state.
//
// Each referenced raster image is re-encoded as JPEG on a white background at
// its original resolution; SVG images are embedded unchanged. Images that
// cannot be loaded or decoded are omitted.
func Encode(ctx context.Context, words []*meta.Word, categories []*meta.Category, blobs Loader, opts ...EncodeOption) (*Document, error) {
	o := encodeOptions{quality: DefaultQuality, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	doc := &Document{
		Version:    Version,
		CreatedAt:  o.now().UTC().Format(time.RFC3339Nano),
		Categories: categories,
		Words:      words,
		Images:     map[string]string{},
	}
	if doc.Categories == nil {
		doc.Categories = []*meta.Category{}
	}
	if doc.Words == nil {
		doc.Words = []*meta.Word{}
	}
	for _, w := range words {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if w.Image == "" {
			continue
		}
		if _, ok := doc.Images[w.Image]; ok {
			continue
		}
		u, err := encodeImage(ctx, blobs, w.Image, o.quality)
		if err != nil {
			slog.DebugContext(ctx, "Skipping image in backup", "id", w.Image, "err", err)
			continue
		}
		doc.Images[w.Image] = u
	}
	return doc, nil
}

func encodeImage(ctx context.Context, blobs Loader, id string, quality int) (string, error) {
	ref, err := blobs.Load(ctx, id)
	if err != nil {
		return "", err
	}
	defer ref.Release()
	// Vector images cannot be rasterized here; they are kept as is.
	if ct := blobstore.DetectContentType(ref.Data()); ct == "image/svg+xml" {
		return blobstore.DataURL(ct, ref.Data()), nil
	}
	data, err := ToJPEG(ref.Data(), quality)
	if err != nil {
		return "", err
	}
	return blobstore.DataURL("image/jpeg", data), nil
}

// ToJPEG decodes an image and re-encodes it as JPEG, flattening transparency
// onto white. The resolution is unchanged.
func ToJPEG(data []byte, quality int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Write serializes doc with two-space indentation.
func Write(w io.Writer, doc *Document) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(doc)
}

// WriteFileAtomic writes doc to a staging file next to path and renames it
// over path, so readers never observe a partial document.
func WriteFileAtomic(path string, doc *Document) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoStaging, err)
	}
	tmp := f.Name()
	if err := Write(f, doc); err != nil {
		return errors.Join(fmt.Errorf("failed to write backup: %w", err), f.Close(), os.Remove(tmp))
	}
	if err := f.Sync(); err != nil {
		return errors.Join(fmt.Errorf("failed to sync backup: %w", err), f.Close(), os.Remove(tmp))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close staging file: %w", err), os.Remove(tmp))
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Join(fmt.Errorf("failed to replace backup: %w", err), os.Remove(tmp))
	}
	return nil
}

// WriteFileInPlace truncates path and writes doc into it. Readers may observe
// a partial document; use it when [WriteFileAtomic] fails with [ErrNoStaging].
func WriteFileInPlace(path string, doc *Document) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644) //nolint:gosec // G302: backups are user readable.
	if err != nil {
		return err
	}
	if err := Write(f, doc); err != nil {
		return errors.Join(fmt.Errorf("failed to write backup: %w", err), f.Close())
	}
	if err := f.Sync(); err != nil {
		return errors.Join(fmt.Errorf("failed to sync backup: %w", err), f.Close())
	}
	return f.Close()
}

// wireDocument detects absent fields, which are distinct from empty ones.
type wireDocument struct {
	Version    int                `json:"version"`
	CreatedAt  string             `json:"createdAt"`
	Categories *[]*meta.Category  `json:"categories"`
	Words      *[]*meta.Word      `json:"words"`
	Images     *map[string]string `json:"images"`
}

// Decode parses a document.
//
// Returns an error wrapping [storage.ErrInvalidBackup] if the JSON is
// malformed or a collection is absent. Newer versions decode with a warning.
func Decode(r io.Reader) (*Document, error) {
	var wd wireDocument
	if err := json.NewDecoder(r).Decode(&wd); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidBackup, err)
	}
	var missing []string
	if wd.Categories == nil {
		missing = append(missing, "categories")
	}
	if wd.Words == nil {
		missing = append(missing, "words")
	}
	if wd.Images == nil {
		missing = append(missing, "images")
	}
	if len(missing) != 0 {
		return nil, fmt.Errorf("%w: missing %s", storage.ErrInvalidBackup, strings.Join(missing, ", "))
	}
	if wd.Version > Version {
		slog.Warn("Backup was written by a newer version", "version", wd.Version, "supported", Version)
	}
	doc := &Document{
		Version:    wd.Version,
		CreatedAt:  wd.CreatedAt,
		Categories: *wd.Categories,
		Words:      *wd.Words,
		Images:     *wd.Images,
	}
	// Null entries carry nothing to merge.
	doc.Categories = compact(doc.Categories)
	doc.Words = compact(doc.Words)
	for i, c := range doc.Categories {
		if c.ID == "" {
			return nil, fmt.Errorf("%w: category %d has no id", storage.ErrInvalidBackup, i)
		}
	}
	for i, w := range doc.Words {
		if w.ID == "" {
			return nil, fmt.Errorf("%w: word %d has no id", storage.ErrInvalidBackup, i)
		}
	}
	return doc, nil
}

func compact[T any](in []*T) []*T {
	out := in[:0]
	for _, v := range in {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// DecodeDataURL parses "data:<mime>;base64,<payload>".
func DecodeDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, errors.New("not a data URL")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data URL has no payload")
	}
	mime, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return "", nil, errors.New("data URL is not base64")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode data URL payload: %w", err)
	}
	return mime, data, nil
}

// Schema returns the JSON Schema of [Document].
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{DoNotReference: true}
	return r.Reflect(&Document{})
}
