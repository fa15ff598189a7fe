// Package storage holds the error values and change notification shared by
// the metadata store and the blob store.
package storage

import "errors"

var (
	// ErrInvalidIdentifier is returned for an empty or otherwise unusable identifier.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrNotFound is returned when a word, category or image does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidBackup is returned when a backup document is malformed or incomplete.
	ErrInvalidBackup = errors.New("invalid backup document")
	// ErrPermissionDenied is returned when write access to the backup destination was refused.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrBackendUnavailable is returned when the selected blob backend cannot be opened.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
)
