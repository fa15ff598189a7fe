package jsonldb

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// ErrCorrupted is returned by [NewTable] when the file cannot be parsed.
var ErrCorrupted = errors.New("table file is corrupted")

// ErrNotFound is returned when no row has the requested identifier.
var ErrNotFound = errors.New("row not found")

// Row is implemented by every type stored in a [Table].
type Row[T any] interface {
	// Clone returns a deep copy. The table hands out clones only.
	Clone() T
	// GetID returns the identifier used by Get, Update, Upsert and Delete.
	GetID() string
	// Validate is called before a row is persisted.
	Validate() error
}

// Table handles storage and in-memory caching for a single table in JSONL format.
type Table[T Row[T]] struct {
	path    string
	columns []column

	mu   sync.RWMutex
	rows []T
}

// NewTable creates a new Table and loads all data from the file.
//
// A missing file is an empty table. A file that cannot be parsed returns an
// error wrapping [ErrCorrupted].
func NewTable[T Row[T]](path string) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: data directories are user readable.
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	columns, err := schemaFromType[T]()
	if err != nil {
		return nil, err
	}
	t := &Table[T]{path: path, columns: columns}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

// OpenLenient is like [NewTable] but never fails on a corrupted file.
//
// The unreadable file is renamed to "<path>.corrupt-<unix>" and the table
// starts empty, so the data stays available for manual recovery.
func OpenLenient[T Row[T]](path string) (*Table[T], error) {
	t, err := NewTable[T](path)
	if err == nil || !errors.Is(err, ErrCorrupted) {
		return t, err
	}
	aside := path + ".corrupt-" + strconv.FormatInt(time.Now().Unix(), 10)
	slog.Warn("Table file unreadable, starting empty", "path", path, "moved_to", aside, "err", err)
	if rerr := os.Rename(path, aside); rerr != nil {
		return nil, errors.Join(err, fmt.Errorf("failed to move corrupted file aside: %w", rerr))
	}
	return NewTable[T](path)
}

func (t *Table[T]) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.rows = []T{}
			return nil
		}
		return fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var rows []T
	var badRow error
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	header := true
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if header {
			header = false
			var h schemaHeader
			if err := json.Unmarshal(line, &h); err != nil {
				return fmt.Errorf("%w: %s: bad header: %w", ErrCorrupted, t.path, err)
			}
			if err := h.Validate(); err != nil {
				return fmt.Errorf("%w: %s: bad header: %w", ErrCorrupted, t.path, err)
			}
			continue
		}
		if badRow != nil {
			return fmt.Errorf("%w: %s: failed to unmarshal row: %w", ErrCorrupted, t.path, badRow)
		}
		var row T
		if err := json.Unmarshal(line, &row); err != nil {
			badRow = err
			continue
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: failed to read table file %s: %w", ErrCorrupted, t.path, err)
	}
	if badRow != nil {
		// Only a last line without its newline is an interrupted append.
		if !tornTail(f) {
			return fmt.Errorf("%w: %s: failed to unmarshal row: %w", ErrCorrupted, t.path, badRow)
		}
	}
	if rows == nil {
		rows = []T{}
	}
	if badRow != nil {
		slog.Warn("Dropping incomplete last row", "path", t.path, "err", badRow)
		_ = f.Close()
		return t.saveLocked(rows)
	}
	t.rows = rows
	return nil
}

// tornTail reports whether the file does not end with a newline.
func tornTail(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil || fi.Size() == 0 {
		return false
	}
	var b [1]byte
	if _, err := f.ReadAt(b[:], fi.Size()-1); err != nil {
		return false
	}
	return b[0] != '\n'
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// All returns an iterator over clones of all rows in storage order.
func (t *Table[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		for _, row := range t.rows {
			if !yield(row.Clone()) {
				return
			}
		}
	}
}

// Get returns a clone of the first row with the identifier.
func (t *Table[T]) Get(id string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i := t.indexLocked(id); i >= 0 {
		return t.rows[i].Clone(), true
	}
	var zero T
	return zero, false
}

// Append adds a row at the end of the table and persists it.
func (t *Table[T]) Append(row T) error {
	if err := row.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var prev int64
	fi, statErr := os.Stat(t.path)
	if statErr == nil {
		prev = fi.Size()
	}
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if os.IsNotExist(statErr) {
		if err := t.writeHeader(w); err != nil {
			return err
		}
	}
	_, _ = w.Write(data)
	_ = w.WriteByte('\n')
	_ = w.Flush()

	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G302: table files are user readable.
	if err != nil {
		return fmt.Errorf("failed to open table file for append: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		// Drop the partial line so the file still matches the rows in memory.
		return errors.Join(fmt.Errorf("failed to write row: %w", err), f.Truncate(prev), f.Close())
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close table file: %w", err)
	}
	t.rows = append(t.rows, row.Clone())
	return nil
}

// Prepend adds a row at the start of the table and persists it.
func (t *Table[T]) Prepend(row T) error {
	if err := row.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	rows := make([]T, 0, len(t.rows)+1)
	rows = append(rows, row.Clone())
	rows = append(rows, t.rows...)
	return t.saveLocked(rows)
}

// Update replaces the first row with the same identifier, keeping its position.
//
// Returns [ErrNotFound] if no row has the identifier.
func (t *Table[T]) Update(row T) error {
	if err := row.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(row.GetID())
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, row.GetID())
	}
	rows := append([]T(nil), t.rows...)
	rows[i] = row.Clone()
	return t.saveLocked(rows)
}

// Modify applies fn to a clone of every row and persists the result.
//
// fn returns false to leave a row untouched. Nothing is written when no row
// changed. Returns the number of modified rows.
func (t *Table[T]) Modify(fn func(row T) bool) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows := make([]T, len(t.rows))
	changed := 0
	for i, row := range t.rows {
		c := row.Clone()
		if fn(c) {
			if err := c.Validate(); err != nil {
				return 0, err
			}
			changed++
		}
		rows[i] = c
	}
	if changed == 0 {
		return 0, nil
	}
	if err := t.saveLocked(rows); err != nil {
		return 0, err
	}
	return changed, nil
}

// Upsert merges rows by identifier in a single write.
//
// A row whose identifier exists replaces the existing row in place (every
// duplicate with that identifier collapses into the first position). Unknown
// identifiers are appended in input order. Returns the number of inserted and
// replaced rows.
func (t *Table[T]) Upsert(rows ...T) (inserted, replaced int, err error) {
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			return 0, 0, err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	incoming := make(map[string]T, len(rows))
	var order []string
	for _, row := range rows {
		id := row.GetID()
		if _, ok := incoming[id]; !ok {
			order = append(order, id)
		}
		incoming[id] = row
	}

	merged := make([]T, 0, len(t.rows)+len(order))
	seen := make(map[string]bool, len(t.rows))
	for _, row := range t.rows {
		id := row.GetID()
		if seen[id] {
			if _, ok := incoming[id]; ok {
				continue
			}
		}
		seen[id] = true
		if in, ok := incoming[id]; ok {
			merged = append(merged, in.Clone())
			replaced++
			continue
		}
		merged = append(merged, row)
	}
	for _, id := range order {
		if !seen[id] {
			merged = append(merged, incoming[id].Clone())
			inserted++
		}
	}
	if err := t.saveLocked(merged); err != nil {
		return 0, 0, err
	}
	return inserted, replaced, nil
}

// Delete removes every row with the identifier.
//
// Returns false if no row matched. Deleting an unknown identifier is not an error.
func (t *Table[T]) Delete(id string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows := make([]T, 0, len(t.rows))
	for _, row := range t.rows {
		if row.GetID() != id {
			rows = append(rows, row)
		}
	}
	if len(rows) == len(t.rows) {
		return false, nil
	}
	return true, t.saveLocked(rows)
}

// Replace replaces all rows with the provided slice and persists it.
func (t *Table[T]) Replace(rows []T) error {
	cp := make([]T, len(rows))
	for i, row := range rows {
		if err := row.Validate(); err != nil {
			return err
		}
		cp[i] = row.Clone()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked(cp)
}

func (t *Table[T]) indexLocked(id string) int {
	for i, row := range t.rows {
		if row.GetID() == id {
			return i
		}
	}
	return -1
}

// saveLocked writes rows to a temp file and renames it over the table file.
// The in-memory rows are only replaced on success.
func (t *Table[T]) saveLocked(rows []T) error {
	f, err := os.CreateTemp(filepath.Dir(t.path), filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp table file: %w", err)
	}
	tmp := f.Name()
	fail := func(err error) error {
		return errors.Join(err, f.Close(), os.Remove(tmp))
	}

	w := bufio.NewWriter(f)
	if err := t.writeHeader(w); err != nil {
		return fail(err)
	}
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fail(fmt.Errorf("failed to marshal row: %w", err))
		}
		_, _ = w.Write(data)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("failed to flush writer: %w", err))
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("failed to sync table file: %w", err))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close temp table file: %w", err), os.Remove(tmp))
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return errors.Join(fmt.Errorf("failed to rename table file: %w", err), os.Remove(tmp))
	}
	t.rows = rows
	return nil
}

func (t *Table[T]) writeHeader(w *bufio.Writer) error {
	data, err := json.Marshal(schemaHeader{Version: currentVersion, Columns: t.columns})
	if err != nil {
		return fmt.Errorf("failed to marshal schema header: %w", err)
	}
	_, _ = w.Write(data)
	return w.WriteByte('\n')
}
