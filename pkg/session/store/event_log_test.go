package store

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"ClusterDesk/pkg/session/api"
)

func chunkEvent(sessionID, content string, done bool) api.Event {
	return api.Event{
		Type:         api.EventMessageChunk,
		SessionID:    sessionID,
		MessageChunk: &api.MessageChunkPayload{Content: content, Done: done},
	}
}

func TestEventLogAppendReplay(t *testing.T) {
	log, err := NewJSONLEventLog(t.TempDir())
	if err != nil {
		t.Fatalf("create log: %v", err)
	}
	ctx := context.Background()

	events := []api.Event{
		chunkEvent("s1", "a", false),
		chunkEvent("s1", "b", true),
		{
			Type:      "tool_execution",
			SessionID: "s1",
			ToolExecution: &api.ToolExecutionPayload{
				RequestID: "r1",
				ToolName:  "kubectl_get",
				Status:    api.ToolCompleted,
				Output:    "3 pods",
			},
		},
	}
	for _, e := range events {
		if err := log.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	// Other sessions do not interleave.
	if err := log.Append(ctx, chunkEvent("s2", "other", true)); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := log.Replay(ctx, "s1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].MessageChunk.Content != "a" || got[1].MessageChunk.Content != "b" {
		t.Fatalf("order lost: %+v", got)
	}
	if got[2].ToolExecution == nil || got[2].ToolExecution.Output != "3 pods" {
		t.Fatalf("payload lost: %+v", got[2])
	}
}

func TestEventLogReplayMissingSession(t *testing.T) {
	log, err := NewJSONLEventLog(t.TempDir())
	if err != nil {
		t.Fatalf("create log: %v", err)
	}
	got, err := log.Replay(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("replay of missing session must be empty, not fail: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no events, got %d", len(got))
	}
}

func TestEventLogRemove(t *testing.T) {
	log, err := NewJSONLEventLog(t.TempDir())
	if err != nil {
		t.Fatalf("create log: %v", err)
	}
	ctx := context.Background()

	if err := log.Append(ctx, chunkEvent("s1", "x", true)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := log.Remove(ctx, "s1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, err := log.Replay(ctx, "s1")
	if err != nil || len(got) != 0 {
		t.Fatalf("log survived removal: %v %v", got, err)
	}
	// Removing twice is fine.
	if err := log.Remove(ctx, "s1"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestEventLogRejectsPathEscape(t *testing.T) {
	log, err := NewJSONLEventLog(t.TempDir())
	if err != nil {
		t.Fatalf("create log: %v", err)
	}
	err = log.Append(context.Background(), chunkEvent("../../etc/passwd", "x", true))
	if !errors.Is(err, ErrPathEscape) {
		t.Fatalf("expected ErrPathEscape, got %v", err)
	}
}

func TestChannelStreamCloseUnblocksParkedSender(t *testing.T) {
	s := NewChannelEnvelopeStream(1)
	if err := s.Send(api.Envelope{Type: "thinking"}); err != nil {
		t.Fatalf("send into free buffer: %v", err)
	}

	// Buffer is full; this sender parks until Close.
	result := make(chan error, 1)
	go func() {
		result <- s.Send(api.Envelope{Type: "thinking"})
	}()

	select {
	case err := <-result:
		t.Fatalf("send completed against a full buffer: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-result:
		if !errors.Is(err, ErrStreamClosed) {
			t.Fatalf("parked sender: expected ErrStreamClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sender still parked after close")
	}

	if err := s.Send(api.Envelope{Type: "thinking"}); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("send after close: expected ErrStreamClosed, got %v", err)
	}
}

func TestChannelStreamDrainsBufferBeforeEOF(t *testing.T) {
	s := NewChannelEnvelopeStream(4)
	if err := s.Send(api.Envelope{Type: "message_chunk"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ctx := context.Background()
	e, err := s.Recv(ctx)
	if err != nil {
		t.Fatalf("buffered envelope lost on close: %v", err)
	}
	if e.Type != "message_chunk" {
		t.Fatalf("unexpected envelope type %q", e.Type)
	}
	if _, err := s.Recv(ctx); err != io.EOF {
		t.Fatalf("expected io.EOF after drain, got %v", err)
	}
}
