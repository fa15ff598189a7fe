package jsonldb

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

type testRow struct {
	ID   string `json:"id" jsonschema:"description=Row identifier"`
	Name string `json:"name"`
	N    int    `json:"n,omitempty"`
}

func (r *testRow) Clone() *testRow {
	c := *r
	return &c
}

func (r *testRow) GetID() string {
	return r.ID
}

func (r *testRow) Validate() error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	return nil
}

func setupTable(t *testing.T) (*Table[*testRow], string) {
	path := filepath.Join(t.TempDir(), "test.jsonl")
	table, err := NewTable[*testRow](path)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	return table, path
}

func ids(table *Table[*testRow]) []string {
	var out []string
	for r := range table.All() {
		out = append(out, r.ID)
	}
	return out
}

func reload(t *testing.T, path string) *Table[*testRow] {
	table, err := NewTable[*testRow](path)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	return table
}

func TestTable(t *testing.T) {
	t.Run("Append", func(t *testing.T) {
		table, path := setupTable(t)
		for _, id := range []string{"a", "b", "a"} {
			if err := table.Append(&testRow{ID: id}); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
		}
		if got, want := ids(table), []string{"a", "b", "a"}; !slices.Equal(got, want) {
			t.Errorf("ids = %v, want %v", got, want)
		}
		if got, want := ids(reload(t, path)), []string{"a", "b", "a"}; !slices.Equal(got, want) {
			t.Errorf("reloaded ids = %v, want %v", got, want)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 4 {
			t.Fatalf("file has %d lines, want 4", len(lines))
		}
		if !strings.Contains(lines[0], `"version":"1.0"`) || !strings.Contains(lines[0], "Row identifier") {
			t.Errorf("header = %s", lines[0])
		}
	})

	t.Run("Prepend", func(t *testing.T) {
		table, path := setupTable(t)
		for _, id := range []string{"a", "b", "c"} {
			if err := table.Prepend(&testRow{ID: id}); err != nil {
				t.Fatalf("Prepend() error = %v", err)
			}
		}
		if got, want := ids(reload(t, path)), []string{"c", "b", "a"}; !slices.Equal(got, want) {
			t.Errorf("ids = %v, want %v", got, want)
		}
	})

	t.Run("Get", func(t *testing.T) {
		table, _ := setupTable(t)
		_ = table.Append(&testRow{ID: "x", Name: "Original"})
		got, ok := table.Get("x")
		if !ok || got.Name != "Original" {
			t.Fatalf("Get() = %+v, %v", got, ok)
		}
		got.Name = "Modified"
		if again, _ := table.Get("x"); again.Name != "Original" {
			t.Error("Get() returned reference instead of clone")
		}
		if _, ok := table.Get("missing"); ok {
			t.Error("Get(missing) found a row")
		}
	})

	t.Run("Update", func(t *testing.T) {
		table, path := setupTable(t)
		_ = table.Append(&testRow{ID: "a", Name: "A"})
		_ = table.Append(&testRow{ID: "b", Name: "B"})
		if err := table.Update(&testRow{ID: "a", Name: "A2"}); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		t2 := reload(t, path)
		if got, want := ids(t2), []string{"a", "b"}; !slices.Equal(got, want) {
			t.Errorf("ids = %v, want %v", got, want)
		}
		if got, _ := t2.Get("a"); got.Name != "A2" {
			t.Errorf("Name = %q, want A2", got.Name)
		}
		if err := table.Update(&testRow{ID: "zz"}); !errors.Is(err, ErrNotFound) {
			t.Errorf("Update(zz) error = %v, want ErrNotFound", err)
		}
		if err := table.Update(&testRow{}); err == nil {
			t.Error("Update() expected validation error")
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		table, path := setupTable(t)
		_ = table.Append(&testRow{ID: "a", Name: "A"})
		_ = table.Append(&testRow{ID: "b", Name: "B"})
		_ = table.Append(&testRow{ID: "a", Name: "dup"})
		inserted, replaced, err := table.Upsert(
			&testRow{ID: "c", Name: "C"},
			&testRow{ID: "a", Name: "A2"},
			&testRow{ID: "d", Name: "D"},
		)
		if err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		if inserted != 2 || replaced != 1 {
			t.Errorf("Upsert() = %d, %d, want 2, 1", inserted, replaced)
		}
		t2 := reload(t, path)
		if got, want := ids(t2), []string{"a", "b", "c", "d"}; !slices.Equal(got, want) {
			t.Errorf("ids = %v, want %v", got, want)
		}
		if got, _ := t2.Get("a"); got.Name != "A2" {
			t.Errorf("Name = %q, want A2", got.Name)
		}

		t.Run("idempotent", func(t *testing.T) {
			before := ids(table)
			if _, _, err := table.Upsert(&testRow{ID: "c", Name: "C"}, &testRow{ID: "d", Name: "D"}); err != nil {
				t.Fatal(err)
			}
			if got := ids(table); !slices.Equal(got, before) {
				t.Errorf("ids = %v, want %v", got, before)
			}
		})
		t.Run("invalid", func(t *testing.T) {
			if _, _, err := table.Upsert(&testRow{}); err == nil {
				t.Error("Upsert() expected validation error")
			}
			if table.Len() != 4 {
				t.Errorf("Len() = %d, want 4", table.Len())
			}
		})
	})

	t.Run("Modify", func(t *testing.T) {
		table, path := setupTable(t)
		_ = table.Append(&testRow{ID: "a", N: 1})
		_ = table.Append(&testRow{ID: "b", N: 2})
		_ = table.Append(&testRow{ID: "c", N: 1})
		n, err := table.Modify(func(r *testRow) bool {
			if r.N != 1 {
				return false
			}
			r.N = 0
			return true
		})
		if err != nil || n != 2 {
			t.Fatalf("Modify() = %d, %v", n, err)
		}
		t2 := reload(t, path)
		for r := range t2.All() {
			if r.N == 1 {
				t.Errorf("row %s not modified", r.ID)
			}
		}
		if n, err := table.Modify(func(*testRow) bool { return false }); err != nil || n != 0 {
			t.Errorf("Modify(noop) = %d, %v", n, err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		table, path := setupTable(t)
		_ = table.Append(&testRow{ID: "a"})
		_ = table.Append(&testRow{ID: "b"})
		_ = table.Append(&testRow{ID: "a"})
		deleted, err := table.Delete("a")
		if err != nil || !deleted {
			t.Fatalf("Delete() = %v, %v", deleted, err)
		}
		if got, want := ids(reload(t, path)), []string{"b"}; !slices.Equal(got, want) {
			t.Errorf("ids = %v, want %v", got, want)
		}
		deleted, err = table.Delete("missing")
		if err != nil || deleted {
			t.Errorf("Delete(missing) = %v, %v", deleted, err)
		}
	})

	t.Run("Replace", func(t *testing.T) {
		table, path := setupTable(t)
		_ = table.Append(&testRow{ID: "a"})
		if err := table.Replace([]*testRow{{ID: "z"}, {ID: "y"}}); err != nil {
			t.Fatalf("Replace() error = %v", err)
		}
		if got, want := ids(reload(t, path)), []string{"z", "y"}; !slices.Equal(got, want) {
			t.Errorf("ids = %v, want %v", got, want)
		}
		entries, err := os.ReadDir(filepath.Dir(path))
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 {
			t.Errorf("leftover files: %v", entries)
		}
	})
}

func TestNewTable(t *testing.T) {
	t.Run("corrupted", func(t *testing.T) {
		tests := []struct {
			name    string
			content string
		}{
			{"not json", "garbage\n"},
			{"header without version", `{"columns":[]}` + "\n"},
			{"bad row", `{"version":"1.0","columns":[]}` + "\n{bad\n"},
			{"newer version", `{"version":"2.0","columns":[]}` + "\n"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				path := filepath.Join(t.TempDir(), "t.jsonl")
				if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
					t.Fatal(err)
				}
				if _, err := NewTable[*testRow](path); !errors.Is(err, ErrCorrupted) {
					t.Errorf("NewTable() error = %v, want ErrCorrupted", err)
				}
			})
		}
	})

	t.Run("interrupted append", func(t *testing.T) {
		table, path := setupTable(t)
		for _, id := range []string{"a", "b"} {
			if err := table.Append(&testRow{ID: id}); err != nil {
				t.Fatal(err)
			}
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			t.Fatal(err)
		}
		_, err = f.WriteString(`{"id":"c","na`)
		if err2 := f.Close(); err == nil {
			err = err2
		}
		if err != nil {
			t.Fatal(err)
		}
		table = reload(t, path)
		if got, want := ids(table), []string{"a", "b"}; !slices.Equal(got, want) {
			t.Fatalf("ids = %v, want %v", got, want)
		}
		if err := table.Append(&testRow{ID: "d"}); err != nil {
			t.Fatal(err)
		}
		if got, want := ids(reload(t, path)), []string{"a", "b", "d"}; !slices.Equal(got, want) {
			t.Errorf("ids = %v, want %v", got, want)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "t.jsonl")
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		table, err := NewTable[*testRow](path)
		if err != nil || table.Len() != 0 {
			t.Fatalf("NewTable() = %v, %v", table, err)
		}
	})
}

func TestOpenLenient(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.jsonl")
	if err := os.WriteFile(path, []byte("{{{{\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := OpenLenient[*testRow](path)
	if err != nil {
		t.Fatalf("OpenLenient() error = %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("Len() = %d, want 0", table.Len())
	}
	if err := table.Append(&testRow{ID: "a"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	matches, err := filepath.Glob(path + ".corrupt-*")
	if err != nil || len(matches) != 1 {
		t.Fatalf("quarantined files = %v, %v", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil || string(data) != "{{{{\n" {
		t.Errorf("quarantined content = %q, %v", data, err)
	}
}
