package blobstore

import (
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ObjectURLPrefix starts every transient object URL.
const ObjectURLPrefix = "blob:typeimage/"

type object struct {
	data        []byte
	contentType string
}

// ObjectURLs holds bytes behind transient "blob:typeimage/<uuid>" URLs until
// they are revoked.
//
// It serves registered objects at "/blob/<uuid>".
type ObjectURLs struct {
	mu      sync.RWMutex
	objects map[string]object
}

// NewObjectURLs returns an empty registry.
func NewObjectURLs() *ObjectURLs {
	return &ObjectURLs{objects: map[string]object{}}
}

// Create registers data and returns its URL.
func (o *ObjectURLs) Create(data []byte, contentType string) string {
	token := uuid.NewString()
	o.mu.Lock()
	o.objects[token] = object{data: data, contentType: contentType}
	o.mu.Unlock()
	return ObjectURLPrefix + token
}

// Revoke forgets the URL. Unknown URLs are ignored.
func (o *ObjectURLs) Revoke(url string) {
	token := strings.TrimPrefix(url, ObjectURLPrefix)
	o.mu.Lock()
	delete(o.objects, token)
	o.mu.Unlock()
}

// Len returns the number of live URLs.
func (o *ObjectURLs) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.objects)
}

// Path returns the HTTP path serving url.
func Path(url string) string {
	return "/blob/" + strings.TrimPrefix(url, ObjectURLPrefix)
}

func (o *ObjectURLs) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.URL.Path, "/blob/")
	o.mu.RLock()
	obj, ok := o.objects[token]
	o.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", obj.contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(obj.data)
}
