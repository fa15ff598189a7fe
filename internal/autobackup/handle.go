package autobackup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/maruel/typeimage/internal/backup"
	"github.com/maruel/typeimage/internal/storage"
)

// Permission is the access state of a [Handle].
type Permission string

// Permission states.
const (
	PermissionGranted Permission = "granted"
	PermissionPrompt  Permission = "prompt"
	PermissionDenied  Permission = "denied"
)

// Handle is a user-granted writable backup file.
//
// It lives for the process lifetime only. Removing or renaming the file
// behind the process's back revokes the grant.
type Handle struct {
	path    string
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}

	mu   sync.Mutex
	perm Permission
}

// Grant creates the handle, creating the file if needed.
func Grant(ctx context.Context, path string) (*Handle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G302: backups are user readable.
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrPermissionDenied, err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory; the file itself is replaced on every write.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err), w.Close())
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &Handle{path: abs, watcher: w, cancel: cancel, done: make(chan struct{}), perm: PermissionGranted}
	go h.watch(ctx)
	return h, nil
}

func (h *Handle) watch(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != h.path || !event.Has(fsnotify.Remove|fsnotify.Rename) {
				continue
			}
			// A rename over the file by our own write leaves it in place.
			if _, err := os.Stat(h.path); err == nil {
				continue
			}
			slog.WarnContext(ctx, "Backup file disappeared, access revoked", "path", h.path)
			h.revoke()
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			slog.WarnContext(ctx, "Backup file watcher error", "err", err)
		}
	}
}

// Path returns the absolute file path.
func (h *Handle) Path() string {
	return h.path
}

// QueryPermission returns the current access state.
func (h *Handle) QueryPermission() Permission {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.perm
}

// RequestPermission asks p to restore access when it is not granted.
func (h *Handle) RequestPermission(ctx context.Context, p Prompter) Permission {
	if perm := h.QueryPermission(); perm != PermissionPrompt {
		return perm
	}
	ok, err := p.Confirm(ctx, fmt.Sprintf("Allow writing the auto-backup to %s?", h.path))
	if err != nil {
		slog.WarnContext(ctx, "Permission prompt failed", "err", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if ok {
		h.perm = PermissionGranted
	} else {
		h.perm = PermissionDenied
	}
	return h.perm
}

func (h *Handle) revoke() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.perm == PermissionGranted {
		h.perm = PermissionPrompt
	}
}

// Close stops the watcher.
func (h *Handle) Close() error {
	h.cancel()
	err := h.watcher.Close()
	<-h.done
	return err
}

// HandleDestination writes to a granted [Handle].
type HandleDestination struct {
	Handle   *Handle
	Prompter Prompter
}

// Name implements [Destination].
func (d *HandleDestination) Name() string {
	return d.Handle.Path()
}

// Write implements [Destination].
func (d *HandleDestination) Write(ctx context.Context, doc *backup.Document) error {
	if d.Handle.QueryPermission() != PermissionGranted {
		p := d.Prompter
		if p == nil {
			p = DenyPrompter{}
		}
		if d.Handle.RequestPermission(ctx, p) != PermissionGranted {
			return fmt.Errorf("%s: %w", d.Handle.Path(), storage.ErrPermissionDenied)
		}
	}
	err := backup.WriteFileAtomic(d.Handle.Path(), doc)
	if errors.Is(err, backup.ErrNoStaging) {
		// The granted file may be writable inside a read-only directory.
		slog.DebugContext(ctx, "Writing backup in place", "path", d.Handle.Path(), "err", err)
		err = backup.WriteFileInPlace(d.Handle.Path(), doc)
	}
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("%w: %w", storage.ErrPermissionDenied, err)
		}
		return err
	}
	return nil
}

// Close implements io.Closer.
func (d *HandleDestination) Close() error {
	return d.Handle.Close()
}
