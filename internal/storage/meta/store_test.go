package meta

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/maruel/typeimage/internal/storage"
)

func openStore(t *testing.T) (*Store, string, *[]storage.Change) {
	dir := t.TempDir()
	var changes []storage.Change
	n := &storage.Notifier{}
	n.AddObserver(storage.ObserverFunc(func(c storage.Change) { changes = append(changes, c) }))
	s, err := Open(dir, n)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s, dir, &changes
}

func wordIDs(ws []*Word) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.ID
	}
	return out
}

func TestStore(t *testing.T) {
	t.Run("default categories", func(t *testing.T) {
		s, dir, _ := openStore(t)
		got := s.Categories()
		if len(got) != 3 || got[0].ID != "animals" || got[2].Name != "Objects" {
			t.Fatalf("Categories() = %+v", got)
		}
		if err := s.DeleteCategory("animals"); err != nil {
			t.Fatal(err)
		}
		s2, err := Open(dir, nil)
		if err != nil {
			t.Fatal(err)
		}
		if n := len(s2.Categories()); n != 2 {
			t.Errorf("reopened Categories() has %d entries, want 2", n)
		}
	})

	t.Run("AppendWord prepends", func(t *testing.T) {
		s, dir, changes := openStore(t)
		for _, id := range []string{"1", "2", "3"} {
			if err := s.AppendWord(&Word{ID: id, Word: "w" + id, Image: id + ".png"}); err != nil {
				t.Fatalf("AppendWord() error = %v", err)
			}
		}
		if got, want := wordIDs(s.Words()), []string{"3", "2", "1"}; !slices.Equal(got, want) {
			t.Errorf("Words() = %v, want %v", got, want)
		}
		if len(*changes) != 3 {
			t.Errorf("got %d changes, want 3", len(*changes))
		}
		s2, err := Open(dir, nil)
		if err != nil {
			t.Fatal(err)
		}
		if got, want := wordIDs(s2.Words()), []string{"3", "2", "1"}; !slices.Equal(got, want) {
			t.Errorf("reopened Words() = %v, want %v", got, want)
		}
	})

	t.Run("AppendWord does not dedupe", func(t *testing.T) {
		s, _, _ := openStore(t)
		_ = s.AppendWord(&Word{ID: "1", Word: "cat"})
		_ = s.AppendWord(&Word{ID: "1", Word: "cat"})
		if n := len(s.Words()); n != 2 {
			t.Errorf("len(Words()) = %d, want 2", n)
		}
	})

	t.Run("UpdateWord", func(t *testing.T) {
		s, _, _ := openStore(t)
		_ = s.AppendWord(&Word{ID: "1", Word: "cat"})
		_ = s.AppendWord(&Word{ID: "2", Word: "dog"})
		if err := s.UpdateWord(&Word{ID: "1", Word: "kitten", CategoryID: CategoryRef("animals")}); err != nil {
			t.Fatal(err)
		}
		w, err := s.Word("1")
		if err != nil || w.Word != "kitten" || w.Category() != "animals" {
			t.Errorf("Word(1) = %+v, %v", w, err)
		}
		if got, want := wordIDs(s.Words()), []string{"2", "1"}; !slices.Equal(got, want) {
			t.Errorf("Words() = %v, want %v", got, want)
		}
		if err := s.UpdateWord(&Word{ID: "nope"}); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("UpdateWord(nope) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("UpsertWords", func(t *testing.T) {
		s, _, _ := openStore(t)
		_ = s.AppendWord(&Word{ID: "1", Word: "cat", Image: "a.png"})
		in := []*Word{
			{ID: "1", Word: "cat2", Image: "b.png", CategoryID: CategoryRef("c1")},
			{ID: "2", Word: "dog", Image: "d.png"},
		}
		inserted, replaced, err := s.UpsertWords(in)
		if err != nil || inserted != 1 || replaced != 1 {
			t.Fatalf("UpsertWords() = %d, %d, %v", inserted, replaced, err)
		}
		if _, _, err := s.UpsertWords(in); err != nil {
			t.Fatal(err)
		}
		ws := s.Words()
		if len(ws) != 2 {
			t.Fatalf("len(Words()) = %d, want 2", len(ws))
		}
		if w := ws[0]; w.Word != "cat2" || w.Image != "b.png" || w.Category() != "c1" {
			t.Errorf("merged word = %+v", w)
		}
	})

	t.Run("DeleteWord", func(t *testing.T) {
		s, _, changes := openStore(t)
		_ = s.AppendWord(&Word{ID: "1"})
		*changes = nil
		if err := s.DeleteWord("1"); err != nil {
			t.Fatal(err)
		}
		if err := s.DeleteWord("1"); err != nil {
			t.Fatal(err)
		}
		if len(s.Words()) != 0 || len(*changes) != 1 {
			t.Errorf("Words() = %v, changes = %v", s.Words(), *changes)
		}
	})

	t.Run("DeleteCategory detaches words", func(t *testing.T) {
		s, _, _ := openStore(t)
		_ = s.AppendWord(&Word{ID: "1", CategoryID: CategoryRef("fruits")})
		_ = s.AppendWord(&Word{ID: "2", CategoryID: CategoryRef("animals")})
		if err := s.DeleteCategory("fruits"); err != nil {
			t.Fatal(err)
		}
		w1, _ := s.Word("1")
		w2, _ := s.Word("2")
		if w1.CategoryID != nil || w2.Category() != "animals" {
			t.Errorf("words = %+v, %+v", w1, w2)
		}
		for _, c := range s.Categories() {
			if c.ID == "fruits" {
				t.Error("category not deleted")
			}
		}
	})

	t.Run("ReferencedImages", func(t *testing.T) {
		s, _, _ := openStore(t)
		_ = s.AppendWord(&Word{ID: "1", Image: "a.png"})
		_ = s.AppendWord(&Word{ID: "2", Image: "a.png"})
		_ = s.AppendWord(&Word{ID: "3"})
		if got := s.ReferencedImages(); !slices.Equal(got, []string{"a.png"}) {
			t.Errorf("ReferencedImages() = %v", got)
		}
	})

	t.Run("corrupted words file", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "words.jsonl"), []byte("not json\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		s, err := Open(dir, nil)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if len(s.Words()) != 0 {
			t.Errorf("Words() = %v, want empty", s.Words())
		}
		if err := s.AppendWord(&Word{ID: "1"}); err != nil {
			t.Errorf("AppendWord() error = %v", err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		s, _, _ := openStore(t)
		_ = s.AppendWord(&Word{ID: "1"})
		_ = s.AddCategory(&Category{ID: "c1", Name: "Pets"})
		if err := s.Clear(); err != nil {
			t.Fatal(err)
		}
		if len(s.Words()) != 0 || len(s.Categories()) != 3 {
			t.Errorf("after Clear: %d words, %d categories", len(s.Words()), len(s.Categories()))
		}
	})
}

func TestSettings(t *testing.T) {
	s, dir, _ := openStore(t)
	if s.DisplayMode() != DisplayReverse || !s.CelebrationEnabled() || s.AutoBackupEnabled() {
		t.Fatal("unexpected defaults")
	}
	if err := s.SetDisplayMode("X"); err == nil {
		t.Error("SetDisplayMode(X) expected error")
	}
	if err := s.SetDisplayMode(DisplaySequential); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCelebrationEnabled(false); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSetting(KeyAutoBackupEnabled, "true"); err != nil {
		t.Fatal(err)
	}
	s2, err := Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s2.DisplayMode() != DisplaySequential || s2.CelebrationEnabled() || !s2.AutoBackupEnabled() {
		t.Error("settings not persisted")
	}

	tests := []struct {
		key  string
		want string
	}{
		{KeyDisplayMode, "S"},
		{KeyCelebration, "false"},
		{KeyAutoBackupEnabled, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := s2.Setting(tt.key)
			if err != nil || got != tt.want {
				t.Errorf("Setting(%s) = %q, %v, want %q", tt.key, got, err, tt.want)
			}
		})
	}
	if _, err := s2.Setting("unknown"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Setting(unknown) error = %v", err)
	}
	if err := s2.SetSetting(KeyCelebration, "maybe"); err == nil {
		t.Error("SetSetting(maybe) expected error")
	}

	t.Run("unparsable value falls back", func(t *testing.T) {
		if err := s2.set(KeyCelebration, "garbage"); err != nil {
			t.Fatal(err)
		}
		if !s2.CelebrationEnabled() {
			t.Error("CelebrationEnabled() = false, want default true")
		}
	})
}
