// Package cards implements the {word, image} flashcard exchange format: parsing,
// conversion and bulk import into the collection.
package cards

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidFormat is returned when a flashcard file is not a JSON array of
// items with both fields set.
var ErrInvalidFormat = errors.New("invalid flashcard file")

// Item is one flashcard of the exchange format.
//
// Image is a data URI, an http(s) URL or bare base64 (assumed PNG).
type Item struct {
	Word  string `json:"word" jsonschema:"description=Word text"`
	Image string `json:"image" jsonschema:"description=Data URI, http(s) URL or bare base64 image"`
}

// Parse reads a flashcard file.
func Parse(r io.Reader) ([]*Item, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	if !strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
		return nil, fmt.Errorf("%w: expected an array of items", ErrInvalidFormat)
	}
	var items []*Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	for i, it := range items {
		if it == nil || strings.TrimSpace(it.Word) == "" || it.Image == "" {
			return nil, fmt.Errorf("%w: item %d must have 'word' and 'image' fields", ErrInvalidFormat, i)
		}
	}
	return items, nil
}

// Export writes items as an indented JSON array.
func Export(w io.Writer, items []*Item) error {
	if items == nil {
		items = []*Item{}
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(items)
}
