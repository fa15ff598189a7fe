package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/maruel/typeimage/internal/autobackup"
	"github.com/maruel/typeimage/internal/backup"
	"github.com/maruel/typeimage/internal/server/handlers"
	"github.com/maruel/typeimage/internal/storage/blobstore"
	"github.com/maruel/typeimage/internal/storage/meta"
)

var pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fixture struct {
	srv   *httptest.Server
	meta  *meta.Store
	blobs *blobstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m, err := meta.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := blobstore.Open(t.Context(), blobstore.Options{DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	build := func(ctx context.Context) (*backup.Document, error) {
		return backup.Encode(ctx, m.Words(), m.Categories(), b)
	}
	s := autobackup.New(m, build, autobackup.WithDebounce(time.Hour))
	svc := &handlers.Services{Meta: m, Blobs: b, Scheduler: s, Build: build, Version: "test"}
	srv := httptest.NewServer(NewRouter(svc))
	t.Cleanup(func() {
		srv.Close()
		_ = s.Close()
		_ = b.Close()
	})
	return &fixture{srv: srv, meta: m, blobs: b}
}

func (f *fixture) do(t *testing.T, method, path string, out any) int {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, f.srv.URL+path, http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("%s %s: bad JSON %q: %v", method, path, body, err)
		}
	}
	return resp.StatusCode
}

func TestRouter(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	if _, err := f.blobs.Save(ctx, "cat.png", pngData); err != nil {
		t.Fatal(err)
	}
	for _, w := range []*meta.Word{
		{ID: "w1", Word: "cat", Image: "cat.png", CategoryID: meta.CategoryRef("animals")},
		{ID: "w2", Word: "apple", Image: "apple.png", CategoryID: meta.CategoryRef("fruits")},
	} {
		if err := f.meta.AppendWord(w); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("health", func(t *testing.T) {
		var got handlers.HealthResponse
		if code := f.do(t, "GET", "/healthz", &got); code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
		if got.Status != "ok" || got.Backend != "transactional" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("list words", func(t *testing.T) {
		var got handlers.ListWordsResponse
		f.do(t, "GET", "/api/words", &got)
		if len(got.Words) != 2 || got.Words[0].ID != "w2" {
			t.Errorf("got %+v", got.Words)
		}
		f.do(t, "GET", "/api/words?category=animals", &got)
		if len(got.Words) != 1 || got.Words[0].Word != "cat" {
			t.Errorf("filtered = %+v", got.Words)
		}
		if err := f.meta.SetDisplayMode(meta.DisplaySequential); err != nil {
			t.Fatal(err)
		}
		f.do(t, "GET", "/api/words?ordered=true", &got)
		if len(got.Words) != 2 || got.Words[0].ID != "w1" {
			t.Errorf("sequential = %+v", got.Words)
		}
	})

	t.Run("word not found", func(t *testing.T) {
		var got errorResponse
		if code := f.do(t, "GET", "/api/words/nope", &got); code != http.StatusNotFound {
			t.Errorf("status = %d", code)
		}
		if got.Error.Code != ErrCodeNotFound {
			t.Errorf("code = %q", got.Error.Code)
		}
	})

	t.Run("image bytes", func(t *testing.T) {
		resp, err := f.srv.Client().Get(f.srv.URL + "/api/images/cat.png")
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK || !bytes.Equal(body, pngData) || resp.Header.Get("Content-Type") != "image/png" {
			t.Errorf("status = %d, type = %q", resp.StatusCode, resp.Header.Get("Content-Type"))
		}
		if n := f.blobs.URLs().Len(); n != 0 {
			t.Errorf("%d object URLs leaked", n)
		}
		if code := f.do(t, "GET", "/api/images/apple.png", nil); code != http.StatusNotFound {
			t.Errorf("missing image status = %d", code)
		}
	})

	t.Run("object URL lifecycle", func(t *testing.T) {
		var got handlers.ImageURLResponse
		if code := f.do(t, "POST", "/api/images/cat.png/url", &got); code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
		if !strings.HasPrefix(got.URL, blobstore.ObjectURLPrefix) || got.Path == "" {
			t.Fatalf("got %+v", got)
		}
		if code := f.do(t, "GET", got.Path, nil); code != http.StatusOK {
			t.Errorf("GET %s = %d", got.Path, code)
		}
		if code := f.do(t, "DELETE", got.Path, nil); code != http.StatusNoContent {
			t.Errorf("DELETE %s = %d", got.Path, code)
		}
		if code := f.do(t, "GET", got.Path, nil); code != http.StatusNotFound {
			t.Errorf("GET after revoke = %d", code)
		}
	})

	t.Run("delete word keeps image", func(t *testing.T) {
		if code := f.do(t, "DELETE", "/api/words/w1", nil); code != http.StatusOK {
			t.Errorf("status = %d", code)
		}
		if _, err := f.meta.Word("w1"); err == nil {
			t.Error("word still present")
		}
		if code := f.do(t, "GET", "/api/images/cat.png", nil); code != http.StatusOK {
			t.Errorf("image status = %d", code)
		}
	})

	t.Run("settings and categories", func(t *testing.T) {
		var s handlers.SettingsResponse
		f.do(t, "GET", "/api/settings", &s)
		if s.DisplayMode != meta.DisplaySequential || !s.CelebrationEnabled || s.AutoBackupEnabled {
			t.Errorf("settings = %+v", s)
		}
		var c handlers.ListCategoriesResponse
		f.do(t, "GET", "/api/categories", &c)
		if len(c.Categories) != 3 {
			t.Errorf("categories = %+v", c.Categories)
		}
	})

	t.Run("backup download", func(t *testing.T) {
		resp, err := f.srv.Client().Get(f.srv.URL + "/api/backup")
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = resp.Body.Close() }()
		if !strings.HasPrefix(resp.Header.Get("Content-Disposition"), "attachment;") {
			t.Errorf("Content-Disposition = %q", resp.Header.Get("Content-Disposition"))
		}
		doc, err := backup.Decode(resp.Body)
		if err != nil {
			t.Fatal(err)
		}
		if len(doc.Words) != 1 || len(doc.Categories) != 3 {
			t.Errorf("doc has %d words, %d categories", len(doc.Words), len(doc.Categories))
		}
	})

	t.Run("auto-backup", func(t *testing.T) {
		var st handlers.AutoBackupStatus
		f.do(t, "GET", "/api/autobackup", &st)
		if st.Enabled || st.State != "idle" && st.State != "pending" {
			t.Errorf("status = %+v", st)
		}
		var e errorResponse
		if code := f.do(t, "POST", "/api/autobackup/run", &e); code != http.StatusServiceUnavailable {
			t.Errorf("run while disabled = %d", code)
		}
	})
}
