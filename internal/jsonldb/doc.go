// Package jsonldb provides a generic, concurrent-safe, JSONL-backed table.
//
// # Overview
//
// [Table] stores rows in a JSONL (JSON Lines) file with full in-memory caching
// for fast reads. Row order on disk is the row order in memory; the table
// never sorts. Callers decide whether new rows go first ([Table.Prepend]) or
// last ([Table.Append]).
//
// # Durability
//
// [Table.Append] appends a single line. Every other mutation rewrites the file
// into a temporary sibling and renames it over the original, so a crash leaves
// either the previous or the new content, never a torn file.
//
// # Duplicates
//
// The table does not enforce identifier uniqueness. [Table.Append] and
// [Table.Prepend] store the row as given; [Table.Upsert] is the operation that
// replaces by identifier.
//
// # File Format
//
// Line 1 is a schema header, subsequent lines are JSON rows.
package jsonldb
