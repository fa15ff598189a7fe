// Package migrations contains the embedded SQLite schema of the image store.
package migrations

import "embed"

// FS contains embedded SQLite migrations for the image store.
//
//go:embed *.sql
var FS embed.FS
