// Package meta stores words, categories and settings as JSONL tables.
package meta

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/samber/lo"

	"github.com/maruel/typeimage/internal/jsonldb"
	"github.com/maruel/typeimage/internal/storage"
)

const source = "meta"

// Store is the metadata store.
//
// Words are kept newest-first. Categories are kept in insertion order.
type Store struct {
	words      *jsonldb.Table[*Word]
	categories *jsonldb.Table[*Category]
	settings   *jsonldb.Table[*setting]
	notifier   *storage.Notifier
}

// Open loads the metadata store from dir.
//
// An unreadable collection is moved aside and starts empty. n may be nil.
func Open(dir string, n *storage.Notifier) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: data directories are user readable.
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}
	s := &Store{notifier: n}
	var err error
	if s.words, err = jsonldb.OpenLenient[*Word](filepath.Join(dir, "words.jsonl")); err != nil {
		return nil, err
	}
	catPath := filepath.Join(dir, "categories.jsonl")
	_, statErr := os.Stat(catPath)
	if s.categories, err = jsonldb.OpenLenient[*Category](catPath); err != nil {
		return nil, err
	}
	if os.IsNotExist(statErr) {
		if err := s.categories.Replace(DefaultCategories()); err != nil {
			return nil, fmt.Errorf("failed to seed categories: %w", err)
		}
	}
	if s.settings, err = jsonldb.OpenLenient[*setting](filepath.Join(dir, "settings.jsonl")); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) publish(kind storage.Kind, id string) {
	s.notifier.Publish(storage.Change{Source: source, Kind: kind, ID: id})
}

// Words returns all words, newest first.
func (s *Store) Words() []*Word {
	return slices.Collect(s.words.All())
}

// Word returns the word with the identifier.
func (s *Store) Word(id string) (*Word, error) {
	w, ok := s.words.Get(id)
	if !ok {
		return nil, fmt.Errorf("word %q: %w", id, storage.ErrNotFound)
	}
	return w, nil
}

// AppendWord stores a new word in front of the others.
//
// It never deduplicates. Use [Store.UpsertWords] to merge.
func (s *Store) AppendWord(w *Word) error {
	if err := s.words.Prepend(w); err != nil {
		return fmt.Errorf("failed to save word: %w", err)
	}
	s.publish(storage.KindPut, w.ID)
	return nil
}

// UpdateWord replaces the word with the same identifier, keeping its position.
func (s *Store) UpdateWord(w *Word) error {
	if err := s.words.Update(w); err != nil {
		if errors.Is(err, jsonldb.ErrNotFound) {
			return fmt.Errorf("word %q: %w", w.ID, storage.ErrNotFound)
		}
		return fmt.Errorf("failed to update word: %w", err)
	}
	s.publish(storage.KindPut, w.ID)
	return nil
}

// UpsertWords merges words by identifier. Known identifiers are overwritten in
// place, unknown ones are appended.
func (s *Store) UpsertWords(ws []*Word) (inserted, replaced int, err error) {
	if len(ws) == 0 {
		return 0, 0, nil
	}
	if inserted, replaced, err = s.words.Upsert(ws...); err != nil {
		return 0, 0, fmt.Errorf("failed to merge words: %w", err)
	}
	s.publish(storage.KindMerge, "")
	return inserted, replaced, nil
}

// DeleteWord removes a word. The referenced image is left in place.
//
// Deleting an unknown word is not an error.
func (s *Store) DeleteWord(id string) error {
	deleted, err := s.words.Delete(id)
	if err != nil {
		return fmt.Errorf("failed to delete word: %w", err)
	}
	if deleted {
		s.publish(storage.KindDelete, id)
	}
	return nil
}

// ReferencedImages returns the distinct image identifiers used by words.
func (s *Store) ReferencedImages() []string {
	return lo.Uniq(lo.FilterMap(s.Words(), func(w *Word, _ int) (string, bool) {
		return w.Image, w.Image != ""
	}))
}

// Categories returns all categories in insertion order.
func (s *Store) Categories() []*Category {
	return slices.Collect(s.categories.All())
}

// AddCategory appends a category.
func (s *Store) AddCategory(c *Category) error {
	if err := s.categories.Append(c); err != nil {
		return fmt.Errorf("failed to save category: %w", err)
	}
	s.publish(storage.KindPut, c.ID)
	return nil
}

// UpsertCategories merges categories by identifier.
func (s *Store) UpsertCategories(cs []*Category) (inserted, replaced int, err error) {
	if len(cs) == 0 {
		return 0, 0, nil
	}
	if inserted, replaced, err = s.categories.Upsert(cs...); err != nil {
		return 0, 0, fmt.Errorf("failed to merge categories: %w", err)
	}
	s.publish(storage.KindMerge, "")
	return inserted, replaced, nil
}

// DeleteCategory detaches every word from the category, then removes it.
func (s *Store) DeleteCategory(id string) error {
	if _, err := s.words.Modify(func(w *Word) bool {
		if w.Category() != id {
			return false
		}
		w.CategoryID = nil
		return true
	}); err != nil {
		return fmt.Errorf("failed to detach words from category: %w", err)
	}
	deleted, err := s.categories.Delete(id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if deleted {
		s.publish(storage.KindDelete, id)
	}
	return nil
}

// Clear removes every word and resets categories to the defaults.
func (s *Store) Clear() error {
	if err := s.words.Replace(nil); err != nil {
		return fmt.Errorf("failed to clear words: %w", err)
	}
	if err := s.categories.Replace(DefaultCategories()); err != nil {
		return fmt.Errorf("failed to reset categories: %w", err)
	}
	s.publish(storage.KindMerge, "")
	return nil
}
