package autobackup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/maruel/typeimage/internal/backup"
	"github.com/maruel/typeimage/internal/storage/git"
)

// FileName is the well-known auto-backup file name.
const FileName = "typeimage-backup.json"

// OverwriteDestination overwrites [FileName] in a primary directory, falling
// back to a secondary directory when the primary write fails.
type OverwriteDestination struct {
	Primary  string
	Fallback string

	repo *git.Repo
}

// NewOverwriteDestination returns the destination. With history, the primary
// directory is a git repository and each successful write is committed.
func NewOverwriteDestination(primary, fallback string, history bool) (*OverwriteDestination, error) {
	if primary == "" && fallback == "" {
		return nil, ErrUnsupported
	}
	d := &OverwriteDestination{Primary: primary, Fallback: fallback}
	if history && primary != "" {
		r, err := git.Open(primary, "", "")
		if err != nil {
			return nil, fmt.Errorf("failed to open backup history: %w", err)
		}
		d.repo = r
	}
	return d, nil
}

// Name implements [Destination].
func (d *OverwriteDestination) Name() string {
	if d.Primary == "" {
		return filepath.Join(d.Fallback, FileName)
	}
	return filepath.Join(d.Primary, FileName)
}

// Write implements [Destination].
func (d *OverwriteDestination) Write(ctx context.Context, doc *backup.Document) error {
	var errs []error
	if d.Primary != "" {
		err := writeInto(d.Primary, doc)
		if err == nil {
			d.commit(ctx, doc)
			return nil
		}
		slog.WarnContext(ctx, "Primary backup write failed, falling back", "dir", d.Primary, "err", err)
		errs = append(errs, err)
	}
	if d.Fallback != "" {
		err := writeInto(d.Fallback, doc)
		if err == nil {
			slog.InfoContext(ctx, "Auto-backup written to fallback", "dir", d.Fallback)
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func writeInto(dir string, doc *backup.Document) error {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: backups are user readable.
		return err
	}
	return backup.WriteFileAtomic(filepath.Join(dir, FileName), doc)
}

func (d *OverwriteDestination) commit(ctx context.Context, doc *backup.Document) {
	if d.repo == nil {
		return
	}
	msg := fmt.Sprintf("Backup %s\n\n%d words, %d categories, %d images", doc.CreatedAt, len(doc.Words), len(doc.Categories), len(doc.Images))
	if _, err := d.repo.Commit(ctx, msg, FileName); err != nil {
		slog.WarnContext(ctx, "Failed to record backup history", "err", err)
	}
}

// History returns the recorded snapshots, newest first.
func (d *OverwriteDestination) History(ctx context.Context, n int) ([]*git.Commit, error) {
	if d.repo == nil {
		return nil, errors.New("backup history is not enabled")
	}
	return d.repo.History(ctx, FileName, n)
}

// Snapshot returns the backup file as of the commit.
func (d *OverwriteDestination) Snapshot(ctx context.Context, hash string) ([]byte, error) {
	if d.repo == nil {
		return nil, errors.New("backup history is not enabled")
	}
	return d.repo.FileAt(ctx, hash, FileName)
}
