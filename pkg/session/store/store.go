// Package store provides persistence for the session layer: an append-only
// JSONL event log per session and a SQLite transcript archive.
package store

import "errors"

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Standard Errors
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

var (
	ErrNotFound    = errors.New("not found")
	ErrPathEscape  = errors.New("path escapes storage root")
	ErrInvalidPath = errors.New("invalid path")
)
