package meta

import (
	"errors"
	"fmt"

	"github.com/maruel/typeimage/internal/storage"
)

// Word is a flashcard pairing a lowercase text with an image identifier.
type Word struct {
	ID         string  `json:"id" jsonschema:"description=Unique word identifier"`
	Word       string  `json:"word" jsonschema:"description=Lowercase text shown on the card"`
	Image      string  `json:"image" jsonschema:"description=Identifier of the image blob"`
	CategoryID *string `json:"category_id" jsonschema:"description=Category identifier or null"`
}

// Clone implements jsonldb.Row.
func (w *Word) Clone() *Word {
	c := *w
	if w.CategoryID != nil {
		id := *w.CategoryID
		c.CategoryID = &id
	}
	return &c
}

// GetID implements jsonldb.Row.
func (w *Word) GetID() string {
	return w.ID
}

// Validate implements jsonldb.Row.
func (w *Word) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("word: %w", storage.ErrInvalidIdentifier)
	}
	return nil
}

// Category returns the category identifier or "" when unset.
func (w *Word) Category() string {
	if w.CategoryID == nil {
		return ""
	}
	return *w.CategoryID
}

// CategoryRef returns a pointer suitable for [Word.CategoryID]; "" maps to nil.
func CategoryRef(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// Category groups words.
type Category struct {
	ID   string `json:"id" jsonschema:"description=Unique category identifier"`
	Name string `json:"name" jsonschema:"description=Display name"`
}

// Clone implements jsonldb.Row.
func (c *Category) Clone() *Category {
	n := *c
	return &n
}

// GetID implements jsonldb.Row.
func (c *Category) GetID() string {
	return c.ID
}

// Validate implements jsonldb.Row.
func (c *Category) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("category: %w", storage.ErrInvalidIdentifier)
	}
	return nil
}

// setting is one scalar key/value pair.
type setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *setting) Clone() *setting {
	n := *s
	return &n
}

func (s *setting) GetID() string {
	return s.Key
}

func (s *setting) Validate() error {
	if s.Key == "" {
		return errors.New("setting key is required")
	}
	return nil
}

// DefaultCategories are seeded when no category file exists.
func DefaultCategories() []*Category {
	return []*Category{
		{ID: "animals", Name: "Animals"},
		{ID: "fruits", Name: "Fruits"},
		{ID: "objects", Name: "Objects"},
	}
}
