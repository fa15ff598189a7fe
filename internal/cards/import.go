package cards

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maruel/ksid"

	"github.com/maruel/typeimage/internal/backup"
	"github.com/maruel/typeimage/internal/storage/meta"
)

// maxDownload bounds images fetched over HTTP.
const maxDownload = 20 << 20

// Words is the subset of the metadata store used here.
type Words interface {
	Word(id string) (*meta.Word, error)
	AppendWord(w *meta.Word) error
	UpdateWord(w *meta.Word) error
}

// Blobs saves images and confirms they are readable.
type Blobs interface {
	SaveVerified(ctx context.Context, id string, data []byte) (string, error)
}

// Tally counts the outcome of [Importer.Import].
type Tally struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Importer creates words from images.
type Importer struct {
	Words Words
	Blobs Blobs
	// Client fetches http(s) images. Defaults to a client with Timeout.
	Client  *http.Client
	Timeout time.Duration
}

// NewImageID returns a fresh, time sortable image identifier.
func NewImageID() string {
	return ksid.NewID().String() + ".png"
}

// AddWord saves the image, verifies it is readable, then prepends the word.
func (im *Importer) AddWord(ctx context.Context, text string, image []byte, categoryID string) (*meta.Word, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil, errors.New("word cannot be empty")
	}
	if len(image) == 0 {
		return nil, errors.New("image is required")
	}
	id, err := im.Blobs.SaveVerified(ctx, NewImageID(), image)
	if err != nil {
		return nil, fmt.Errorf("failed to save image: %w", err)
	}
	w := &meta.Word{ID: uuid.NewString(), Word: text, Image: id, CategoryID: meta.CategoryRef(categoryID)}
	if err := im.Words.AppendWord(w); err != nil {
		return nil, err
	}
	return w, nil
}

// EditWord changes the text and category of a word. A non-empty image is
// saved under a fresh identifier; the previous blob is left in place.
func (im *Importer) EditWord(ctx context.Context, id, text, categoryID string, image []byte) (*meta.Word, error) {
	w, err := im.Words.Word(id)
	if err != nil {
		return nil, err
	}
	if text = strings.ToLower(strings.TrimSpace(text)); text != "" {
		w.Word = text
	}
	w.CategoryID = meta.CategoryRef(categoryID)
	if len(image) != 0 {
		img, err := im.Blobs.SaveVerified(ctx, NewImageID(), image)
		if err != nil {
			return nil, fmt.Errorf("failed to save image: %w", err)
		}
		w.Image = img
	}
	if err := im.Words.UpdateWord(w); err != nil {
		return nil, err
	}
	return w, nil
}

// Import adds every item under categoryID, one at a time. A failing item is
// logged and counted, never fatal.
func (im *Importer) Import(ctx context.Context, items []*Item, categoryID string) Tally {
	var t Tally
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			t.Failed++
			continue
		}
		if err := im.importOne(ctx, it, categoryID); err != nil {
			slog.WarnContext(ctx, "Failed to import word", "word", it.Word, "err", err)
			t.Failed++
			continue
		}
		t.Succeeded++
	}
	slog.InfoContext(ctx, "Import done", "succeeded", t.Succeeded, "failed", t.Failed)
	return t
}

func (im *Importer) importOne(ctx context.Context, it *Item, categoryID string) error {
	if it == nil || it.Word == "" || it.Image == "" {
		return errors.New("item must have 'word' and 'image' fields")
	}
	data, err := im.ResolveImage(ctx, it.Image)
	if err != nil {
		return err
	}
	_, err = im.AddWord(ctx, it.Word, data, categoryID)
	return err
}

// ResolveImage returns the bytes referenced by an item image field.
func (im *Importer) ResolveImage(ctx context.Context, s string) ([]byte, error) {
	switch {
	case strings.HasPrefix(s, "data:"):
		_, data, err := backup.DecodeDataURL(s)
		return data, err
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return im.fetch(ctx, s)
	default:
		data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(s), ""))
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 image: %w", err)
		}
		return data, nil
	}
}

func (im *Importer) fetch(ctx context.Context, url string) ([]byte, error) {
	c := im.Client
	if c == nil {
		timeout := im.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		c = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch image: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxDownload {
		return nil, fmt.Errorf("image larger than %d bytes", maxDownload)
	}
	return data, nil
}
