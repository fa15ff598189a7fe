package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/maruel/typeimage/internal/storage"
	"github.com/maruel/typeimage/internal/storage/blobstore"
)

// ServeImage streams the image bytes and releases the reference.
func (s *Services) ServeImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ref, err := s.Blobs.Load(ctx, r.PathValue("id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.NotFound(w, r)
		return
	case errors.Is(err, storage.ErrInvalidIdentifier):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		slog.ErrorContext(ctx, "Failed to load image", "err", err)
		http.Error(w, "failed to load image", http.StatusInternalServerError)
		return
	}
	defer ref.Release()
	data := ref.Data()
	w.Header().Set("Content-Type", ref.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// ImageURLRequest names an image.
type ImageURLRequest struct {
	ID string `path:"id"`
}

// ImageURLResponse is a displayable reference.
type ImageURLResponse struct {
	URL string `json:"url"`
	// Path serves URL while it is live. Empty for self-contained data URLs.
	Path string `json:"path,omitempty"`
}

// ImageURL loads an image and returns its displayable URL. Object URLs stay
// live until revoked with DELETE on Path.
func (s *Services) ImageURL(ctx context.Context, req *ImageURLRequest) (*ImageURLResponse, error) {
	ref, err := s.Blobs.Load(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	u := ref.URL()
	if !strings.HasPrefix(u, blobstore.ObjectURLPrefix) {
		return &ImageURLResponse{URL: u}, nil
	}
	return &ImageURLResponse{URL: u, Path: blobstore.Path(u)}, nil
}

// RevokeURL releases an object URL.
func (s *Services) RevokeURL(w http.ResponseWriter, r *http.Request) {
	s.Blobs.URLs().Revoke(blobstore.ObjectURLPrefix + r.PathValue("token"))
	w.WriteHeader(http.StatusNoContent)
}
