// Package blobstore stores image bytes under opaque identifiers.
//
// Exactly one of two backends is active per process: a transactional SQLite
// object store, or a device-native directory with one file per identifier.
// The backend is chosen once by [Open].
package blobstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/maruel/typeimage/internal/storage"
)

const source = "blob"

// Backend names a backend variant.
type Backend string

// Backend variants.
const (
	Transactional   Backend = "transactional"
	NativeDirectory Backend = "native-directory"
)

// backend is implemented by each storage variant.
type backend interface {
	put(ctx context.Context, id string, data []byte, contentType string) error
	// get returns errNoBlob when the identifier is absent.
	get(ctx context.Context, id string) ([]byte, string, error)
	remove(ctx context.Context, id string) error
	list(ctx context.Context) ([]string, error)
	close() error
}

var errNoBlob = errors.New("no such blob")

// Options configures [Open].
type Options struct {
	// DataDir holds images.db for the transactional backend.
	DataDir string
	// NativeDir, when set, selects the native-directory backend.
	NativeDir string
	// URLs receives the transient object URLs of the transactional backend.
	// A private registry is created when nil.
	URLs *ObjectURLs
	// Notifier receives a change for every Save and Delete. May be nil.
	Notifier *storage.Notifier
}

// Store is the blob store.
type Store struct {
	kind     Backend
	b        backend
	urls     *ObjectURLs
	notifier *storage.Notifier
}

// Open selects and opens the backend.
//
// Errors wrap [storage.ErrBackendUnavailable].
func Open(ctx context.Context, opts Options) (*Store, error) {
	s := &Store{urls: opts.URLs, notifier: opts.Notifier}
	if s.urls == nil {
		s.urls = NewObjectURLs()
	}
	var err error
	if opts.NativeDir != "" {
		s.kind = NativeDirectory
		s.b, err = openDir(opts.NativeDir)
	} else {
		s.kind = Transactional
		s.b, err = openSQLite(ctx, filepath.Join(opts.DataDir, "images.db"))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", storage.ErrBackendUnavailable, s.kind, err)
	}
	slog.DebugContext(ctx, "Blob store opened", "backend", s.kind)
	return s, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.b.close()
}

// Backend returns the active variant.
func (s *Store) Backend() Backend {
	return s.kind
}

// URLs returns the object URL registry.
func (s *Store) URLs() *ObjectURLs {
	return s.urls
}

// ValidateID returns [storage.ErrInvalidIdentifier] for an identifier that
// cannot name a blob.
func ValidateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: %q", storage.ErrInvalidIdentifier, id)
	}
	return nil
}

// Save durably stores data under id, overwriting any previous content.
func (s *Store) Save(ctx context.Context, id string, data []byte) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	if err := s.b.put(ctx, id, data, DetectContentType(data)); err != nil {
		return "", fmt.Errorf("failed to save image %s: %w", id, err)
	}
	s.notifier.Publish(storage.Change{Source: source, Kind: storage.KindPut, ID: id})
	return id, nil
}

// Load returns a displayable reference to the blob. The caller must call
// [Ref.Release] when done.
func (s *Store) Load(ctx context.Context, id string) (*Ref, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	data, ct, err := s.b.get(ctx, id)
	if err != nil {
		if errors.Is(err, errNoBlob) {
			return nil, fmt.Errorf("image %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load image %s: %w", id, err)
	}
	r := &Ref{ID: id, ContentType: ct, data: data}
	if s.kind == Transactional {
		r.url = s.urls.Create(data, ct)
		r.release = func() { s.urls.Revoke(r.url) }
	} else {
		r.url = DataURL(ct, data)
	}
	return r, nil
}

// Delete removes the blob. Deleting an absent blob is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := s.b.remove(ctx, id); err != nil {
		return fmt.Errorf("failed to delete image %s: %w", id, err)
	}
	s.notifier.Publish(storage.Change{Source: source, Kind: storage.KindDelete, ID: id})
	return nil
}

// List returns every stored identifier, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return s.b.list(ctx)
}

// Ref is a loaded blob.
type Ref struct {
	ID          string
	ContentType string

	data    []byte
	url     string
	once    sync.Once
	release func()
}

// URL returns a displayable URL: a transient "blob:" URL for the
// transactional backend, a self-contained "data:" URL otherwise.
func (r *Ref) URL() string {
	return r.url
}

// Data returns the blob bytes.
func (r *Ref) Data() []byte {
	return r.data
}

// Release frees the transient URL. It is safe to call more than once.
func (r *Ref) Release() {
	r.once.Do(func() {
		if r.release != nil {
			r.release()
		}
	})
}

// DataURL formats a base64 data URL.
func DataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DetectContentType sniffs image bytes. SVG documents are recognized even
// though the standard sniffer reports them as XML or text.
func DetectContentType(data []byte) string {
	ct := http.DetectContentType(data)
	if strings.HasPrefix(ct, "text/xml") || strings.HasPrefix(ct, "text/plain") {
		head := data[:min(len(data), 1024)]
		if bytes.Contains(head, []byte("<svg")) {
			return "image/svg+xml"
		}
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return ct
}
