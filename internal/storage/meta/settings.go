package meta

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/maruel/typeimage/internal/storage"
)

// Setting keys.
const (
	KeyDisplayMode       = "image-display-mode"
	KeyCelebration       = "celebration-enabled"
	KeyAutoBackupEnabled = "auto-backup-enabled"
)

// DisplayMode selects how images are ordered in the learning flow.
type DisplayMode string

// Display modes.
const (
	DisplaySequential DisplayMode = "S"
	DisplayReverse    DisplayMode = "R"
)

// Keys lists every known setting key.
func Keys() []string {
	return []string{KeyDisplayMode, KeyCelebration, KeyAutoBackupEnabled}
}

func (s *Store) get(key string) (string, bool) {
	v, ok := s.settings.Get(key)
	if !ok {
		return "", false
	}
	return v.Value, true
}

func (s *Store) set(key, value string) error {
	if _, _, err := s.settings.Upsert(&setting{Key: key, Value: value}); err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	s.publish(storage.KindPut, key)
	return nil
}

func (s *Store) getBool(key string, def bool) bool {
	v, ok := s.get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// DisplayMode returns the image display mode, [DisplayReverse] by default.
func (s *Store) DisplayMode() DisplayMode {
	if v, _ := s.get(KeyDisplayMode); v == string(DisplaySequential) || v == string(DisplayReverse) {
		return DisplayMode(v)
	}
	return DisplayReverse
}

// SetDisplayMode stores the image display mode.
func (s *Store) SetDisplayMode(m DisplayMode) error {
	if m != DisplaySequential && m != DisplayReverse {
		return fmt.Errorf("invalid display mode %q", m)
	}
	return s.set(KeyDisplayMode, string(m))
}

// CelebrationEnabled defaults to true.
func (s *Store) CelebrationEnabled() bool {
	return s.getBool(KeyCelebration, true)
}

// SetCelebrationEnabled stores the celebration toggle.
func (s *Store) SetCelebrationEnabled(v bool) error {
	return s.set(KeyCelebration, strconv.FormatBool(v))
}

// AutoBackupEnabled defaults to false.
func (s *Store) AutoBackupEnabled() bool {
	return s.getBool(KeyAutoBackupEnabled, false)
}

// SetAutoBackupEnabled stores the auto-backup toggle.
func (s *Store) SetAutoBackupEnabled(v bool) error {
	return s.set(KeyAutoBackupEnabled, strconv.FormatBool(v))
}

// Setting returns the effective value of a known key, defaults included.
func (s *Store) Setting(key string) (string, error) {
	switch key {
	case KeyDisplayMode:
		return string(s.DisplayMode()), nil
	case KeyCelebration:
		return strconv.FormatBool(s.CelebrationEnabled()), nil
	case KeyAutoBackupEnabled:
		return strconv.FormatBool(s.AutoBackupEnabled()), nil
	default:
		return "", fmt.Errorf("setting %q: %w", key, storage.ErrNotFound)
	}
}

// SetSetting parses and stores a value for a known key.
func (s *Store) SetSetting(key, value string) error {
	if !slices.Contains(Keys(), key) {
		return fmt.Errorf("setting %q: %w", key, storage.ErrNotFound)
	}
	if key == KeyDisplayMode {
		return s.SetDisplayMode(DisplayMode(value))
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return s.set(key, strconv.FormatBool(b))
}
