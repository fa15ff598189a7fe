// Package autobackup re-emits a backup document to a destination after the
// collection stops changing for a quiet period.
package autobackup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/maruel/typeimage/internal/backup"
	"github.com/maruel/typeimage/internal/storage"
)

// DefaultDebounce is the quiet period before a pass.
const DefaultDebounce = 3 * time.Second

var (
	// ErrUnsupported is returned when no backup destination can be configured.
	ErrUnsupported = errors.New("no backup destination configured")
	// ErrDisabled is returned by [Scheduler.Flush] while auto-backup is off.
	ErrDisabled = errors.New("auto-backup is disabled")
)

// State is the scheduler state.
type State int

// Scheduler states.
const (
	StateIdle State = iota
	StatePending
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Settings is the persisted auto-backup toggle.
type Settings interface {
	AutoBackupEnabled() bool
	SetAutoBackupEnabled(v bool) error
}

// Destination receives backup documents.
type Destination interface {
	// Name describes the destination for logs.
	Name() string
	// Write stores doc. Returning storage.ErrPermissionDenied disables auto-backup.
	Write(ctx context.Context, doc *backup.Document) error
}

// BuildFunc produces the document of a pass.
type BuildFunc func(ctx context.Context) (*backup.Document, error)

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithPassTimeout bounds the duration of one pass.
func WithPassTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.passTimeout = d
		}
	}
}

// Scheduler debounces change notifications into backup passes.
//
// Passes never overlap. A trigger during a pass schedules one more pass
// after it.
type Scheduler struct {
	settings    Settings
	build       BuildFunc
	debounce    time.Duration
	passTimeout time.Duration
	failures    rate.Sometimes

	// passMu is held for the whole duration of a pass.
	passMu sync.Mutex

	mu       sync.Mutex
	state    State
	gen      uint64
	timer    *time.Timer
	trailing bool
	closed   bool
	dest     Destination
	passes   int
}

// New returns an idle scheduler.
func New(settings Settings, build BuildFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		settings:    settings,
		build:       build,
		debounce:    DefaultDebounce,
		passTimeout: 5 * time.Minute,
		failures:    rate.Sometimes{First: 1, Interval: time.Minute},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange implements storage.Observer.
func (s *Scheduler) OnChange(storage.Change) {
	s.Trigger()
}

// Trigger (re)starts the debounce timer.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.state == StateRunning {
		s.trailing = true
		return
	}
	s.state = StatePending
	s.scheduleLocked()
}

func (s *Scheduler) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.debounce, func() { s.fire(gen) })
}

func (s *Scheduler) fire(gen uint64) {
	s.passMu.Lock()
	defer s.passMu.Unlock()
	s.mu.Lock()
	if s.closed || gen != s.gen || s.state != StatePending {
		s.mu.Unlock()
		return
	}
	s.state = StateRunning
	s.mu.Unlock()

	if err := s.pass(context.Background()); err != nil && !errors.Is(err, ErrDisabled) {
		slog.Debug("Auto-backup pass failed", "err", err)
	}
	s.finish()
}

// finish leaves the running state, starting a trailing cycle if needed.
func (s *Scheduler) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trailing && !s.closed {
		s.trailing = false
		s.state = StatePending
		s.scheduleLocked()
		return
	}
	s.trailing = false
	s.state = StateIdle
}

// pass runs one backup. It is detached from the caller's cancellation.
func (s *Scheduler) pass(ctx context.Context) error {
	s.mu.Lock()
	dest := s.dest
	s.mu.Unlock()
	if !s.settings.AutoBackupEnabled() {
		return ErrDisabled
	}
	if dest == nil {
		return ErrUnsupported
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.passTimeout)
	defer cancel()

	start := time.Now()
	err := s.write(ctx, dest)
	s.mu.Lock()
	s.passes++
	s.mu.Unlock()
	switch {
	case err == nil:
		slog.InfoContext(ctx, "Auto-backup written", "dest", dest.Name(), "dur", time.Since(start).Round(time.Millisecond))
	case errors.Is(err, storage.ErrPermissionDenied):
		slog.WarnContext(ctx, "Auto-backup permission denied, disabling", "dest", dest.Name())
		if derr := s.Disable(); derr != nil {
			err = errors.Join(err, derr)
		}
	default:
		s.failures.Do(func() {
			slog.WarnContext(ctx, "Auto-backup failed, will retry on next change", "dest", dest.Name(), "err", err)
		})
	}
	return err
}

func (s *Scheduler) write(ctx context.Context, dest Destination) error {
	doc, err := s.build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build backup: %w", err)
	}
	return dest.Write(ctx, doc)
}

// Flush runs a pass now, after any running pass. A pending pass is absorbed.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.passMu.Lock()
	defer s.passMu.Unlock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("scheduler is closed")
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	s.state = StateRunning
	s.trailing = false
	s.mu.Unlock()
	err := s.pass(ctx)
	s.finish()
	return err
}

// SetDestination replaces the destination. The previous one is closed if it
// implements io.Closer. d may be nil.
func (s *Scheduler) SetDestination(d Destination) {
	s.mu.Lock()
	old := s.dest
	s.dest = d
	s.mu.Unlock()
	if c, ok := old.(io.Closer); ok && old != d {
		if err := c.Close(); err != nil {
			slog.Warn("Failed to close backup destination", "err", err)
		}
	}
}

// Destination returns the current destination or nil.
func (s *Scheduler) Destination() Destination {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dest
}

// Disable clears the destination and turns auto-backup off.
func (s *Scheduler) Disable() error {
	s.SetDestination(nil)
	return s.settings.SetAutoBackupEnabled(false)
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Passes returns the number of passes that reached a destination.
func (s *Scheduler) Passes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passes
}

// Close stops the timer and waits for an in-flight pass to complete.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	s.mu.Unlock()
	s.passMu.Lock()
	defer s.passMu.Unlock()
	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
	s.SetDestination(nil)
	return nil
}
