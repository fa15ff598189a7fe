package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/maruel/typeimage/internal/storage/meta"
)

// Metadata is the part of the metadata store a restore writes to.
type Metadata interface {
	UpsertCategories(cs []*meta.Category) (inserted, replaced int, err error)
	UpsertWords(ws []*meta.Word) (inserted, replaced int, err error)
}

// Saver is the part of the blob store a restore writes to.
type Saver interface {
	Save(ctx context.Context, id string, data []byte) (string, error)
}

// RestoreReport summarizes a restore.
type RestoreReport struct {
	CategoriesAdded    int `json:"categories_added"`
	CategoriesReplaced int `json:"categories_replaced"`
	WordsAdded         int `json:"words_added"`
	WordsReplaced      int `json:"words_replaced"`
	ImagesWritten      int `json:"images_written"`
	ImagesFailed       int `json:"images_failed"`
}

// Restore merges doc into the current state.
//
// Categories then words are merged by identifier, incoming records replacing
// existing ones whole. Every image is written before the words that reference
// it are persisted. An image that fails is counted and skipped.
func Restore(ctx context.Context, doc *Document, m Metadata, blobs Saver) (*RestoreReport, error) {
	r := &RestoreReport{}
	var err error
	if r.CategoriesAdded, r.CategoriesReplaced, err = m.UpsertCategories(doc.Categories); err != nil {
		return r, err
	}

	ids := make([]string, 0, len(doc.Images))
	for id := range doc.Images {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		_, data, err := DecodeDataURL(doc.Images[id])
		if err == nil {
			_, err = blobs.Save(ctx, id, data)
		}
		if err != nil {
			r.ImagesFailed++
			slog.WarnContext(ctx, "Failed to restore image", "id", id, "err", err)
			continue
		}
		r.ImagesWritten++
	}

	if r.WordsAdded, r.WordsReplaced, err = m.UpsertWords(doc.Words); err != nil {
		return r, err
	}
	slog.InfoContext(ctx, "Backup restored",
		"categories", r.CategoriesAdded+r.CategoriesReplaced,
		"words", r.WordsAdded+r.WordsReplaced,
		"images", r.ImagesWritten,
		"images_failed", r.ImagesFailed)
	return r, nil
}

// RestoreFile decodes the file at path then restores it. A malformed file
// aborts before anything is written.
func RestoreFile(ctx context.Context, path string, m Metadata, blobs Saver) (*RestoreReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup: %w", err)
	}
	doc, err := Decode(f)
	_ = f.Close()
	if err != nil {
		return nil, err
	}
	return Restore(ctx, doc, m, blobs)
}
