package autobackup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maruel/typeimage/internal/backup"
	"github.com/maruel/typeimage/internal/storage"
)

type fakeSettings struct {
	enabled atomic.Bool
}

func (f *fakeSettings) AutoBackupEnabled() bool { return f.enabled.Load() }

func (f *fakeSettings) SetAutoBackupEnabled(v bool) error {
	f.enabled.Store(v)
	return nil
}

type fakeDest struct {
	mu     sync.Mutex
	writes int
	err    error
	// block, when set, is received from before each write returns.
	block   chan struct{}
	started chan struct{}
}

func (d *fakeDest) Name() string { return "fake" }

func (d *fakeDest) Write(ctx context.Context, _ *backup.Document) error {
	if d.started != nil {
		d.started <- struct{}{}
	}
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++
	return d.err
}

func (d *fakeDest) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

func emptyDoc(context.Context) (*backup.Document, error) {
	return &backup.Document{Version: 1, Images: map[string]string{}}, nil
}

func newScheduler(t *testing.T, enabled bool, dest Destination) (*Scheduler, *fakeSettings) {
	t.Helper()
	st := &fakeSettings{}
	st.enabled.Store(enabled)
	s := New(st, emptyDoc, WithDebounce(20*time.Millisecond))
	if dest != nil {
		s.SetDestination(dest)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, st
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScheduler(t *testing.T) {
	t.Run("burst coalesces into one pass", func(t *testing.T) {
		d := &fakeDest{}
		s, _ := newScheduler(t, true, d)
		for range 5 {
			s.OnChange(storage.Change{Source: "meta", Kind: storage.KindPut})
		}
		if got := s.State(); got != StatePending {
			t.Errorf("State() = %v, want pending", got)
		}
		waitFor(t, "pass", func() bool { return s.Passes() == 1 && s.State() == StateIdle })
		time.Sleep(60 * time.Millisecond)
		if n := d.count(); n != 1 {
			t.Errorf("got %d writes, want 1", n)
		}
	})

	t.Run("spaced triggers push the pass out", func(t *testing.T) {
		const debounce = 200 * time.Millisecond
		d := &fakeDest{}
		st := &fakeSettings{}
		st.enabled.Store(true)
		s := New(st, emptyDoc, WithDebounce(debounce))
		s.SetDestination(d)
		t.Cleanup(func() { _ = s.Close() })

		// The triggers span longer than one debounce period.
		var last time.Time
		for i := range 8 {
			if i > 0 {
				time.Sleep(40 * time.Millisecond)
			}
			s.Trigger()
			last = time.Now()
		}
		if n := d.count(); n != 0 {
			t.Fatalf("got %d writes while triggers kept arriving, want 0", n)
		}
		time.Sleep(debounce / 2)
		if n := d.count(); n != 0 {
			t.Fatalf("got %d writes before the quiet period ended, want 0", n)
		}
		waitFor(t, "pass", func() bool { return d.count() == 1 })
		if elapsed := time.Since(last); elapsed < debounce {
			t.Errorf("pass ran %v after the last trigger, want at least %v", elapsed, debounce)
		}
		time.Sleep(debounce + 50*time.Millisecond)
		if n := d.count(); n != 1 {
			t.Errorf("got %d writes, want 1", n)
		}
	})

	t.Run("trigger during pass runs a trailing pass", func(t *testing.T) {
		d := &fakeDest{block: make(chan struct{}), started: make(chan struct{}, 4)}
		s, _ := newScheduler(t, true, d)
		s.Trigger()
		<-d.started
		if got := s.State(); got != StateRunning {
			t.Errorf("State() = %v, want running", got)
		}
		s.Trigger()
		s.Trigger()
		d.block <- struct{}{}
		<-d.started
		d.block <- struct{}{}
		waitFor(t, "trailing pass", func() bool { return s.Passes() == 2 && s.State() == StateIdle })
		if n := d.count(); n != 2 {
			t.Errorf("got %d writes, want 2", n)
		}
	})

	t.Run("disabled is a no-op", func(t *testing.T) {
		d := &fakeDest{}
		s, _ := newScheduler(t, false, d)
		s.Trigger()
		waitFor(t, "idle", func() bool { return s.State() == StateIdle })
		if d.count() != 0 || s.Passes() != 0 {
			t.Errorf("writes = %d, passes = %d", d.count(), s.Passes())
		}
		if err := s.Flush(t.Context()); !errors.Is(err, ErrDisabled) {
			t.Errorf("Flush() error = %v, want ErrDisabled", err)
		}
	})

	t.Run("no destination", func(t *testing.T) {
		s, _ := newScheduler(t, true, nil)
		if err := s.Flush(t.Context()); !errors.Is(err, ErrUnsupported) {
			t.Errorf("Flush() error = %v, want ErrUnsupported", err)
		}
	})

	t.Run("permission denied disables", func(t *testing.T) {
		d := &fakeDest{err: storage.ErrPermissionDenied}
		s, st := newScheduler(t, true, d)
		s.Trigger()
		waitFor(t, "disable", func() bool { return !st.AutoBackupEnabled() })
		if s.Destination() != nil {
			t.Error("destination not cleared")
		}
	})

	t.Run("transient error keeps enabled", func(t *testing.T) {
		d := &fakeDest{err: errors.New("disk full")}
		s, st := newScheduler(t, true, d)
		if err := s.Flush(t.Context()); err == nil {
			t.Error("Flush() expected error")
		}
		if !st.AutoBackupEnabled() || s.Destination() == nil {
			t.Error("auto-backup disabled by transient error")
		}
	})

	t.Run("Flush absorbs pending", func(t *testing.T) {
		d := &fakeDest{}
		s, _ := newScheduler(t, true, d)
		s.Trigger()
		if err := s.Flush(t.Context()); err != nil {
			t.Fatal(err)
		}
		time.Sleep(60 * time.Millisecond)
		if n := d.count(); n != 1 {
			t.Errorf("got %d writes, want 1", n)
		}
		if got := s.State(); got != StateIdle {
			t.Errorf("State() = %v, want idle", got)
		}
	})

	t.Run("Close stops timer", func(t *testing.T) {
		d := &fakeDest{}
		s, _ := newScheduler(t, true, d)
		s.Trigger()
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
		time.Sleep(60 * time.Millisecond)
		if d.count() != 0 {
			t.Error("pass ran after Close")
		}
		s.Trigger()
		if got := s.State(); got != StateIdle {
			t.Errorf("State() = %v, want idle", got)
		}
	})
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{StateIdle: "idle", StatePending: "pending", StateRunning: "running", State(9): "State(9)"} {
		if got := s.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
