package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"ClusterDesk/pkg/session/api"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Archive
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// ArchiveInfo summarizes one archived session.
type ArchiveInfo struct {
	SessionID  string
	EndedAt    time.Time
	EntryCount int
	Reason     string
}

// Archive persists settled transcripts of ended sessions in a SQLite
// database (cgo-free driver). One row per session; entries stored as a
// JSON document, since the archive is read back whole for display.
type Archive struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenArchive creates (or opens) the transcript database under workspaceRoot.
func OpenArchive(workspaceRoot string) (*Archive, error) {
	path := filepath.Join(workspaceRoot, "archive", "sessions.db")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	a := &Archive{db: db}
	if err := a.init(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) init() error {
	_, err := a.db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		ended_at TEXT NOT NULL,
		reason TEXT,
		entry_count INTEGER NOT NULL,
		transcript TEXT NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("failed to initialize archive schema: %w", err)
	}
	return nil
}

// Save archives the settled transcript of an ended session. Re-archiving the
// same session id overwrites the previous row.
func (a *Archive) Save(ctx context.Context, snap api.Snapshot, reason string) error {
	transcript, err := json.Marshal(snap.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_, err = a.db.ExecContext(ctx, `INSERT INTO sessions
		(session_id, ended_at, reason, entry_count, transcript)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			ended_at = excluded.ended_at,
			reason = excluded.reason,
			entry_count = excluded.entry_count,
			transcript = excluded.transcript`,
		snap.SessionID,
		time.Now().UTC().Format(time.RFC3339),
		reason,
		len(snap.Messages),
		string(transcript),
	)
	if err != nil {
		return fmt.Errorf("failed to archive session: %w", err)
	}
	return nil
}

// List returns archived sessions, most recent first.
func (a *Archive) List(ctx context.Context) ([]ArchiveInfo, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT session_id, ended_at, reason, entry_count
		 FROM sessions ORDER BY datetime(ended_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer rows.Close()

	var infos []ArchiveInfo
	for rows.Next() {
		var info ArchiveInfo
		var endedAt string
		if err := rows.Scan(&info.SessionID, &endedAt, &info.Reason, &info.EntryCount); err != nil {
			return nil, fmt.Errorf("failed to scan archive row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, endedAt); err == nil {
			info.EndedAt = t
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Load returns the archived transcript for a session id.
func (a *Archive) Load(ctx context.Context, sessionID string) ([]api.MessageEntry, error) {
	var transcript string
	err := a.db.QueryRowContext(ctx,
		`SELECT transcript FROM sessions WHERE session_id = ?`, sessionID).Scan(&transcript)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load archive: %w", err)
	}
	var entries []api.MessageEntry
	if err := json.Unmarshal([]byte(transcript), &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	return entries, nil
}

// Delete removes an archived session.
func (a *Archive) Delete(ctx context.Context, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete archived session: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
