package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// SaveVerified saves data then reads it back, so a word is only persisted
// once its image is readable.
func (s *Store) SaveVerified(ctx context.Context, id string, data []byte) (string, error) {
	id, err := s.Save(ctx, id, data)
	if err != nil {
		return "", err
	}
	ref, err := s.Load(ctx, id)
	if err != nil {
		return "", fmt.Errorf("image %s not readable after save: %w", id, err)
	}
	defer ref.Release()
	if !bytes.Equal(ref.Data(), data) {
		return "", fmt.Errorf("image %s not readable after save: content differs", id)
	}
	return id, nil
}

// CollectOrphans deletes every blob whose identifier is not in referenced.
//
// It is never run implicitly. Returns the deleted identifiers.
func CollectOrphans(ctx context.Context, s *Store, referenced []string) ([]string, error) {
	keep := make(map[string]struct{}, len(referenced))
	for _, id := range referenced {
		keep[id] = struct{}{}
	}
	ids, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var deleted []string
	var errs []error
	for _, id := range ids {
		if _, ok := keep[id]; ok {
			continue
		}
		if err := s.Delete(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		slog.DebugContext(ctx, "Deleted orphan image", "id", id)
		deleted = append(deleted, id)
	}
	return deleted, errors.Join(errs...)
}
