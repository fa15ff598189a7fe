package jsonldb

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/invopop/jsonschema"
)

// currentVersion is written in the header of every file.
const currentVersion = "1.0"

// column describes one JSON property of the row type.
//
// Type is the JSON Schema type, with "date-time" for timestamps.
type column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// schemaHeader is the first line of a file. It documents the rows for a
// human reading the file; rows are decoded without consulting it.
type schemaHeader struct {
	Version string   `json:"version"`
	Columns []column `json:"columns"`
}

func (h *schemaHeader) Validate() error {
	if h.Version == "" {
		return errors.New("version is required")
	}
	if major, _, _ := strings.Cut(h.Version, "."); major != "1" {
		return fmt.Errorf("unsupported version %q", h.Version)
	}
	for i := range h.Columns {
		if h.Columns[i].Name == "" {
			return fmt.Errorf("column %d has no name", i)
		}
	}
	return nil
}

// schemaFromType lists the properties of T in declaration order, described by
// their `jsonschema:"description=..."` tag.
func schemaFromType[T any]() ([]column, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("row type %s is not a struct", t)
	}
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	s := r.ReflectFromType(t)
	var cols []column
	for p := s.Properties.Oldest(); p != nil; p = p.Next() {
		typ := p.Value.Type
		if p.Value.Format == "date-time" {
			typ = p.Value.Format
		}
		cols = append(cols, column{
			Name:        p.Key,
			Type:        typ,
			Required:    slices.Contains(s.Required, p.Key),
			Description: p.Value.Description,
		})
	}
	return cols, nil
}

