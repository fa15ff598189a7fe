package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Registers the "sqlite" driver.

	"github.com/maruel/typeimage/internal/storage/blobstore/migrations"
)

const migrationTable = "schema_migrations"

// sqliteBackend is the transactional backend.
type sqliteBackend struct {
	db *sql.DB
}

func openSQLite(ctx context.Context, path string) (*sqliteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: data directories are user readable.
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Writes are serialized by SQLite anyway; one connection avoids busy errors.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) put(ctx context.Context, id string, data []byte, contentType string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO images (id, data, content_type, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   data = excluded.data,
		   content_type = excluded.content_type,
		   updated_at = excluded.updated_at`,
		id, data, contentType, time.Now().UTC().UnixMilli(),
	); err != nil {
		return errors.Join(fmt.Errorf("put image: %w", err), tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit image: %w", err)
	}
	return nil
}

func (b *sqliteBackend) get(ctx context.Context, id string) ([]byte, string, error) {
	var data []byte
	var ct string
	err := b.db.QueryRowContext(ctx, `SELECT data, content_type FROM images WHERE id = ?`, id).Scan(&data, &ct)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", errNoBlob
	}
	if err != nil {
		return nil, "", fmt.Errorf("get image: %w", err)
	}
	return data, ct, nil
}

func (b *sqliteBackend) remove(ctx context.Context, id string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

func (b *sqliteBackend) list(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id FROM images ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan image id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (b *sqliteBackend) close() error {
	return b.db.Close()
}

// applyMigrations executes each embedded "*.sql" file at most once and
// records it in schema_migrations.
func applyMigrations(ctx context.Context, db *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	for _, file := range files {
		var found int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM `+migrationTable+` WHERE name = ?`, file).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		up := upSection(string(content))
		if strings.TrimSpace(up) == "" {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, up); err != nil {
			return errors.Join(fmt.Errorf("exec migration %s: %w", file, err), tx.Rollback())
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`,
			file, time.Now().UTC().UnixMilli()); err != nil {
			return errors.Join(fmt.Errorf("record migration %s: %w", file, err), tx.Rollback())
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// upSection returns the SQL between "-- +migrate Up" and "-- +migrate Down".
func upSection(content string) string {
	const upMark, downMark = "-- +migrate Up", "-- +migrate Down"
	i := strings.Index(content, upMark)
	if i == -1 {
		return content
	}
	content = content[i+len(upMark):]
	if j := strings.Index(content, downMark); j != -1 {
		content = content[:j]
	}
	return content
}
