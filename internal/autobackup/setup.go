package autobackup

import (
	"context"
	"fmt"
)

// Platform is the device class deciding the destination strategy.
type Platform string

// Platforms.
const (
	PlatformAuto    Platform = "auto"
	PlatformDesktop Platform = "desktop"
	PlatformMobile  Platform = "mobile"
)

// ParsePlatform validates a configured platform name.
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(s); p {
	case PlatformAuto, PlatformDesktop, PlatformMobile:
		return p, nil
	case "":
		return PlatformAuto, nil
	default:
		return "", fmt.Errorf("invalid platform %q, want auto, desktop or mobile", s)
	}
}

// Resolve turns [PlatformAuto] into a concrete class: mobile when the host
// declared a native data directory.
func (p Platform) Resolve(hasNativeDir bool) Platform {
	if p != PlatformAuto {
		return p
	}
	if hasNativeDir {
		return PlatformMobile
	}
	return PlatformDesktop
}

// SetupOptions configures [Setup].
type SetupOptions struct {
	Platform Platform
	// File is the desktop backup file.
	File string
	// DocumentsDir and DownloadsDir are the mobile primary and fallback directories.
	DocumentsDir string
	DownloadsDir string
	History      bool
	Prompter     Prompter
}

// Destination builds the destination for the options without touching the
// scheduler. Desktop requires File.
func (o *SetupOptions) Destination(ctx context.Context) (Destination, error) {
	switch o.Platform {
	case PlatformMobile:
		return NewOverwriteDestination(o.DocumentsDir, o.DownloadsDir, o.History)
	case PlatformDesktop:
		if o.File == "" {
			return nil, ErrUnsupported
		}
		h, err := Grant(ctx, o.File)
		if err != nil {
			return nil, err
		}
		p := o.Prompter
		if p == nil {
			p = NewPrompter()
		}
		return &HandleDestination{Handle: h, Prompter: p}, nil
	default:
		return nil, fmt.Errorf("unresolved platform %q", o.Platform)
	}
}

// Setup configures the destination, enables auto-backup and runs an initial pass.
func Setup(ctx context.Context, s *Scheduler, opts SetupOptions) error {
	d, err := opts.Destination(ctx)
	if err != nil {
		return err
	}
	s.SetDestination(d)
	if err := s.settings.SetAutoBackupEnabled(true); err != nil {
		return err
	}
	return s.Flush(ctx)
}
