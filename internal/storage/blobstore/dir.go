package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maruel/typeimage/internal/storage"
)

const tmpDirName = "tmp"

// dirBackend stores one file per identifier in a device-native directory.
//
// Writes go to <dir>/tmp/<random>.tmp, are synced, then renamed into place.
type dirBackend struct {
	dir string
}

func openDir(dir string) (*dirBackend, error) {
	if err := os.MkdirAll(filepath.Join(dir, tmpDirName), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &dirBackend{dir: dir}, nil
}

func (b *dirBackend) put(ctx context.Context, id string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == tmpDirName {
		return fmt.Errorf("%w: %q is reserved", storage.ErrInvalidIdentifier, id)
	}
	f, err := os.CreateTemp(filepath.Join(b.dir, tmpDirName), "*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		return errors.Join(fmt.Errorf("failed to write image: %w", err), f.Close(), os.Remove(tmp))
	}
	if err := f.Sync(); err != nil {
		return errors.Join(fmt.Errorf("failed to sync image: %w", err), f.Close(), os.Remove(tmp))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(tmp))
	}
	if err := os.Rename(tmp, filepath.Join(b.dir, id)); err != nil {
		return errors.Join(fmt.Errorf("failed to rename image to final location: %w", err), os.Remove(tmp))
	}
	return nil
}

func (b *dirBackend) get(ctx context.Context, id string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if id == tmpDirName {
		return nil, "", errNoBlob
	}
	data, err := os.ReadFile(filepath.Join(b.dir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", errNoBlob
		}
		return nil, "", err
	}
	return data, DetectContentType(data), nil
}

func (b *dirBackend) remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == tmpDirName {
		return nil
	}
	if err := os.Remove(filepath.Join(b.dir, id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (b *dirBackend) list(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// close removes stale temp files left by an interrupted write.
func (b *dirBackend) close() error {
	matches, err := filepath.Glob(filepath.Join(b.dir, tmpDirName, "*.tmp"))
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
