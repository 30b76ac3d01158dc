package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ClusterDesk/pkg/session/api"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// EventLog Interface
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// EventLog is an append-only log of applied session events, for auditing
// and replay. Appends preserve application order per session.
type EventLog interface {
	// Append adds an event to the session's log.
	Append(ctx context.Context, e api.Event) error

	// Replay returns all logged events for a session, in append order.
	Replay(ctx context.Context, sessionID string) ([]api.Event, error)

	// Remove discards the session's log.
	Remove(ctx context.Context, sessionID string) error
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// JSONLEventLog
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// JSONLEventLog implements EventLog using one JSONL file per session.
type JSONLEventLog struct {
	baseDir string
	mu      sync.Mutex
}

// NewJSONLEventLog creates a JSONL event log rooted under workspaceRoot.
func NewJSONLEventLog(workspaceRoot string) (*JSONLEventLog, error) {
	baseDir := filepath.Join(workspaceRoot, "events")
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create events directory: %w", err)
	}
	return &JSONLEventLog{baseDir: baseDir}, nil
}

func (l *JSONLEventLog) path(sessionID string) string {
	return filepath.Join(l.baseDir, sessionID+".jsonl")
}

// validatePath rejects session ids that would write outside baseDir.
func (l *JSONLEventLog) validatePath(p string) error {
	absPath, err := filepath.Abs(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	absBase, err := filepath.Abs(l.baseDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) && absPath != absBase {
		return ErrPathEscape
	}
	return nil
}

// Append adds an event to the session's log.
func (l *JSONLEventLog) Append(ctx context.Context, e api.Event) error {
	if e.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	p := l.path(e.SessionID)
	if err := l.validatePath(p); err != nil {
		return err
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Replay returns all logged events for a session in append order.
func (l *JSONLEventLog) Replay(ctx context.Context, sessionID string) ([]api.Event, error) {
	p := l.path(sessionID)
	if err := l.validatePath(p); err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()

	var events []api.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		var e api.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	return events, nil
}

// Remove discards the session's log.
func (l *JSONLEventLog) Remove(ctx context.Context, sessionID string) error {
	p := l.path(sessionID)
	if err := l.validatePath(p); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove events file: %w", err)
	}
	return nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// NopEventLog
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// NopEventLog discards everything. Used in tests and when persistence is
// disabled.
type NopEventLog struct{}

func (NopEventLog) Append(ctx context.Context, e api.Event) error { return nil }

func (NopEventLog) Replay(ctx context.Context, sessionID string) ([]api.Event, error) {
	return nil, nil
}

func (NopEventLog) Remove(ctx context.Context, sessionID string) error { return nil }

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Channel Envelope Stream
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// ErrStreamClosed is returned by Send after the stream has been closed.
var ErrStreamClosed = fmt.Errorf("stream is closed")

// ChannelEnvelopeStream implements api.EnvelopeStream over a channel.
// Backends push envelopes into it; the coordinator pump drains it.
//
// Closure is signalled through a separate done channel rather than by
// closing the envelope channel: backends send from their own goroutines,
// and a sender parked on a full buffer must unblock with an error on
// Close instead of panicking.
type ChannelEnvelopeStream struct {
	ch   chan api.Envelope
	done chan struct{}
	once sync.Once
}

// NewChannelEnvelopeStream creates a channel-backed envelope stream.
func NewChannelEnvelopeStream(bufferSize int) *ChannelEnvelopeStream {
	return &ChannelEnvelopeStream{
		ch:   make(chan api.Envelope, bufferSize),
		done: make(chan struct{}),
	}
}

// Send pushes an envelope into the stream. It returns ErrStreamClosed once
// the stream is closed, even if the send is already blocked on a full
// buffer.
func (s *ChannelEnvelopeStream) Send(e api.Envelope) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	select {
	case s.ch <- e:
		return nil
	case <-s.done:
		return ErrStreamClosed
	}
}

// Recv receives the next envelope. It returns io.EOF when the stream
// closes, after draining anything still buffered.
func (s *ChannelEnvelopeStream) Recv(ctx context.Context) (api.Envelope, error) {
	select {
	case <-ctx.Done():
		return api.Envelope{}, ctx.Err()
	case e := <-s.ch:
		return e, nil
	case <-s.done:
		select {
		case e := <-s.ch:
			return e, nil
		default:
			return api.Envelope{}, io.EOF
		}
	}
}

// Close closes the stream. Safe to call more than once and concurrently
// with Send.
func (s *ChannelEnvelopeStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
