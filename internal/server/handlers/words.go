// Package handlers implements the HTTP API over the collection.
package handlers

import (
	"context"

	"github.com/samber/lo"

	"github.com/maruel/typeimage/internal/autobackup"
	"github.com/maruel/typeimage/internal/storage/blobstore"
	"github.com/maruel/typeimage/internal/storage/meta"
)

// Services holds the dependencies of the handlers.
type Services struct {
	Meta      *meta.Store
	Blobs     *blobstore.Store
	Scheduler *autobackup.Scheduler
	// Build produces a backup document for download.
	Build   autobackup.BuildFunc
	Version string
}

// ListWordsRequest filters the word list.
type ListWordsRequest struct {
	Category string `query:"category"`
	// Ordered lists oldest first when the display mode is sequential.
	Ordered bool `query:"ordered"`
}

// ListWordsResponse is the word list.
type ListWordsResponse struct {
	Words []*meta.Word `json:"words"`
}

// ListWords returns the words, newest first.
//
// With ordered=true the display mode setting decides the order.
func (s *Services) ListWords(ctx context.Context, req *ListWordsRequest) (*ListWordsResponse, error) {
	words := s.Meta.Words()
	if req.Category != "" {
		words = lo.Filter(words, func(w *meta.Word, _ int) bool { return w.Category() == req.Category })
	}
	if req.Ordered && s.Meta.DisplayMode() == meta.DisplaySequential {
		words = lo.Reverse(words)
	}
	if words == nil {
		words = []*meta.Word{}
	}
	return &ListWordsResponse{Words: words}, nil
}

// WordRequest names a word.
type WordRequest struct {
	ID string `path:"id"`
}

// GetWord returns one word.
func (s *Services) GetWord(ctx context.Context, req *WordRequest) (*meta.Word, error) {
	return s.Meta.Word(req.ID)
}

// DeleteWordResponse is empty.
type DeleteWordResponse struct{}

// DeleteWord removes a word. Its image is kept.
func (s *Services) DeleteWord(ctx context.Context, req *WordRequest) (*DeleteWordResponse, error) {
	if err := s.Meta.DeleteWord(req.ID); err != nil {
		return nil, err
	}
	return &DeleteWordResponse{}, nil
}

// ListCategoriesRequest is empty.
type ListCategoriesRequest struct{}

// ListCategoriesResponse is the category list.
type ListCategoriesResponse struct {
	Categories []*meta.Category `json:"categories"`
}

// ListCategories returns the categories in insertion order.
func (s *Services) ListCategories(ctx context.Context, req *ListCategoriesRequest) (*ListCategoriesResponse, error) {
	cs := s.Meta.Categories()
	if cs == nil {
		cs = []*meta.Category{}
	}
	return &ListCategoriesResponse{Categories: cs}, nil
}

// SettingsRequest is empty.
type SettingsRequest struct{}

// SettingsResponse is the settings surface.
type SettingsResponse struct {
	DisplayMode        meta.DisplayMode `json:"image-display-mode"`
	CelebrationEnabled bool             `json:"celebration-enabled"`
	AutoBackupEnabled  bool             `json:"auto-backup-enabled"`
}

// GetSettings returns the settings with defaults applied.
func (s *Services) GetSettings(ctx context.Context, req *SettingsRequest) (*SettingsResponse, error) {
	return &SettingsResponse{
		DisplayMode:        s.Meta.DisplayMode(),
		CelebrationEnabled: s.Meta.CelebrationEnabled(),
		AutoBackupEnabled:  s.Meta.AutoBackupEnabled(),
	}, nil
}
