package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maruel/typeimage/internal/autobackup"
	"github.com/maruel/typeimage/internal/backup"
	"github.com/maruel/typeimage/internal/cards"
	"github.com/maruel/typeimage/internal/config"
	"github.com/maruel/typeimage/internal/storage"
	"github.com/maruel/typeimage/internal/storage/blobstore"
	"github.com/maruel/typeimage/internal/storage/meta"
)

// app is the opened collection.
type app struct {
	cfg      *config.Config
	notifier *storage.Notifier
	meta     *meta.Store
	blobs    *blobstore.Store
	sched    *autobackup.Scheduler
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, notifier: &storage.Notifier{}}
	var err error
	if a.meta, err = meta.Open(cfg.DataDir, a.notifier); err != nil {
		return nil, fmt.Errorf("failed to open metadata: %w", err)
	}
	a.blobs, err = blobstore.Open(ctx, blobstore.Options{DataDir: cfg.DataDir, NativeDir: cfg.NativeDir, Notifier: a.notifier})
	if err != nil {
		return nil, err
	}
	a.sched = autobackup.New(a.meta, a.buildBackup, autobackup.WithDebounce(cfg.AutoBackup.Debounce))
	a.notifier.AddObserver(a.sched)

	// The overwrite-in-place destination needs no grant, so it survives
	// restarts. A desktop handle never does.
	if cfg.ResolvedPlatform() == autobackup.PlatformMobile && a.meta.AutoBackupEnabled() {
		opts := a.setupOptions("", nil)
		d, err := opts.Destination(ctx)
		if err != nil {
			slog.WarnContext(ctx, "Auto-backup destination unavailable", "err", err)
		} else {
			a.sched.SetDestination(d)
		}
	}
	slog.DebugContext(ctx, "Collection opened", "data_dir", cfg.DataDir, "backend", a.blobs.Backend(), "platform", cfg.ResolvedPlatform())
	return a, nil
}

func (a *app) buildBackup(ctx context.Context) (*backup.Document, error) {
	return backup.Encode(ctx, a.meta.Words(), a.meta.Categories(), a.blobs, backup.WithQuality(a.cfg.AutoBackup.Quality))
}

func (a *app) setupOptions(file string, p autobackup.Prompter) autobackup.SetupOptions {
	return autobackup.SetupOptions{
		Platform:     a.cfg.ResolvedPlatform(),
		File:         file,
		DocumentsDir: a.cfg.AutoBackup.DocumentsDir,
		DownloadsDir: a.cfg.AutoBackup.DownloadsDir,
		History:      a.cfg.AutoBackup.History,
		Prompter:     p,
	}
}

func (a *app) importer() *cards.Importer {
	return &cards.Importer{Words: a.meta, Blobs: a.blobs, Timeout: a.cfg.Import.Timeout}
}

// Close runs a pending auto-backup pass before exiting so a short-lived
// command does not drop its own mutation.
func (a *app) Close(ctx context.Context) error {
	if a.sched.State() != autobackup.StateIdle {
		err := a.sched.Flush(ctx)
		if err != nil && !errors.Is(err, autobackup.ErrDisabled) && !errors.Is(err, autobackup.ErrUnsupported) {
			slog.WarnContext(ctx, "Final auto-backup pass failed", "err", err)
		}
	}
	return errors.Join(a.sched.Close(), a.blobs.Close())
}
