package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ClusterDesk/pkg/session/api"
	"ClusterDesk/pkg/session/store"
)

// fakeSink records outbound commands in order.
type fakeSink struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *fakeSink) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, call)
	return nil
}

func (s *fakeSink) StartTurn(sessionID, text string) error {
	return s.record(fmt.Sprintf("start_turn %s %q", sessionID, text))
}

func (s *fakeSink) Interrupt(sessionID string) error {
	return s.record("interrupt " + sessionID)
}

func (s *fakeSink) ApprovalResponse(sessionID, requestID string, approved bool) error {
	return s.record(fmt.Sprintf("approval %s %s %v", sessionID, requestID, approved))
}

func (s *fakeSink) SessionLifecycle(op api.LifecycleOp, sessionID string) error {
	return s.record(fmt.Sprintf("session %s %s", op, sessionID))
}

func (s *fakeSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func waitSnapshot(t *testing.T, sub <-chan api.Snapshot, cond func(api.Snapshot) bool) api.Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-sub:
			if cond(snap) {
				return snap
			}
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot")
		}
	}
}

func newTestController(sink api.CommandSink) *Controller {
	return NewController(NewCoordinator(nil), sink, nil, nil)
}

func TestSendStartsTurn(t *testing.T) {
	sink := &fakeSink{}
	ctrl := newTestController(sink)
	id := ctrl.NewSession()

	if err := ctrl.Send("  how many pods?  "); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	snap, err := ctrl.Snapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if !snap.Streaming || len(snap.Messages) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Messages[0].Message.Content != "how many pods?" {
		t.Fatalf("input not trimmed: %q", snap.Messages[0].Message.Content)
	}

	want := fmt.Sprintf("start_turn %s %q", id, "how many pods?")
	calls := sink.snapshot()
	if len(calls) != 2 || calls[1] != want {
		t.Fatalf("unexpected sink calls: %v", calls)
	}
}

func TestSendRejectionsDoNotReachSink(t *testing.T) {
	sink := &fakeSink{}
	ctrl := newTestController(sink)
	ctrl.NewSession()
	baseline := len(sink.snapshot())

	if err := ctrl.Send("   "); !errors.Is(err, api.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if err := ctrl.Send("first"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := ctrl.Send("second"); !errors.Is(err, api.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	calls := sink.snapshot()
	if len(calls) != baseline+1 {
		t.Fatalf("rejected sends reached the sink: %v", calls)
	}
}

func TestApprovalRoundTrip(t *testing.T) {
	sink := &fakeSink{}
	ctrl := newTestController(sink)
	coord := ctrl.Coordinator()
	id := ctrl.NewSession()

	stream := store.NewChannelEnvelopeStream(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx, stream)

	sub, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	data := fmt.Sprintf(`{"session_id":%q,"request_id":"r1","reason":"mutates state","severity":"high"}`, id)
	if err := stream.Send(api.Envelope{Type: "approval_required", Data: []byte(data)}); err != nil {
		t.Fatalf("stream send failed: %v", err)
	}

	waitSnapshot(t, sub, func(s api.Snapshot) bool {
		return s.SessionID == id && s.PendingApproval != nil
	})

	if err := ctrl.Approve("r1"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	snap, _ := ctrl.Snapshot()
	if snap.PendingApproval != nil {
		t.Fatalf("approval slot not cleared: %+v", snap)
	}

	want := fmt.Sprintf("approval %s r1 true", id)
	var found bool
	for _, c := range sink.snapshot() {
		if c == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("approval not forwarded to sink: %v", sink.snapshot())
	}

	if err := ctrl.Approve("r1"); !errors.Is(err, api.ErrNoPendingApproval) {
		t.Fatalf("expected ErrNoPendingApproval, got %v", err)
	}
}

func TestInterruptForwardsImplicitDenial(t *testing.T) {
	sink := &fakeSink{}
	ctrl := newTestController(sink)
	coord := ctrl.Coordinator()
	id := ctrl.NewSession()

	stream := store.NewChannelEnvelopeStream(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx, stream)

	sub, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	if err := ctrl.Send("delete the cache pod"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	data := fmt.Sprintf(`{"session_id":%q,"request_id":"r1","reason":"destructive","severity":"critical"}`, id)
	_ = stream.Send(api.Envelope{Type: "approval_required", Data: []byte(data)})
	waitSnapshot(t, sub, func(s api.Snapshot) bool {
		return s.SessionID == id && s.PendingApproval != nil
	})

	if err := ctrl.Interrupt(); err != nil {
		t.Fatalf("interrupt failed: %v", err)
	}

	snap, _ := ctrl.Snapshot()
	if snap.Streaming || snap.PendingApproval != nil {
		t.Fatalf("interrupt did not settle the session: %+v", snap)
	}

	calls := sink.snapshot()
	wantDenial := fmt.Sprintf("approval %s r1 false", id)
	wantInterrupt := "interrupt " + id
	var sawDenial, sawInterrupt bool
	for _, c := range calls {
		if c == wantDenial {
			sawDenial = true
		}
		if c == wantInterrupt {
			sawInterrupt = true
		}
	}
	if !sawDenial || !sawInterrupt {
		t.Fatalf("missing outbound commands: %v", calls)
	}

	// A second interrupt finds nothing to do and sends nothing.
	before := len(sink.snapshot())
	if err := ctrl.Interrupt(); err != nil {
		t.Fatalf("idempotent interrupt failed: %v", err)
	}
	if len(sink.snapshot()) != before {
		t.Fatalf("no-op interrupt reached the sink")
	}
}

func TestCoordinatorDropsMalformedEnvelopes(t *testing.T) {
	sink := &fakeSink{}
	ctrl := newTestController(sink)
	coord := ctrl.Coordinator()
	id := ctrl.NewSession()

	stream := store.NewChannelEnvelopeStream(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx, stream)

	sub, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	_ = stream.Send(api.Envelope{Type: "telemetry", Data: []byte(`{"session_id":"x"}`)})
	_ = stream.Send(api.Envelope{Type: "message_chunk", Data: []byte(`{"done":true}`)})
	chunkData := fmt.Sprintf(`{"session_id":%q,"content":"hi","done":true}`, id)
	_ = stream.Send(api.Envelope{Type: "message_chunk", Data: []byte(chunkData)})

	snap := waitSnapshot(t, sub, func(s api.Snapshot) bool {
		return s.SessionID == id && len(s.Messages) > 0
	})
	if snap.Messages[0].Message.Content != "hi" {
		t.Fatalf("valid event lost: %+v", snap.Messages)
	}

	var codes []string
	for _, a := range coord.Anomalies() {
		codes = append(codes, a.Code)
	}
	var sawUnknown, sawDecode bool
	for _, c := range codes {
		if c == api.AnomalyUnknownEvent {
			sawUnknown = true
		}
		if c == api.AnomalyDecode {
			sawDecode = true
		}
	}
	if !sawUnknown || !sawDecode {
		t.Fatalf("dropped envelopes not recorded: %v", codes)
	}
}

func TestCoordinatorCreatesSessionOnFirstSight(t *testing.T) {
	coord := NewCoordinator(nil)
	stream := store.NewChannelEnvelopeStream(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx, stream)

	sub, unsubscribe := coord.Subscribe()
	defer unsubscribe()

	_ = stream.Send(api.Envelope{Type: "message_chunk", Data: []byte(`{"session_id":"resumed","content":"back","done":true}`)})

	snap := waitSnapshot(t, sub, func(s api.Snapshot) bool {
		return s.SessionID == "resumed"
	})
	if len(snap.Messages) != 1 || snap.Messages[0].Message.Content != "back" {
		t.Fatalf("resumed session state wrong: %+v", snap)
	}
}

func TestDeleteSessionArchivesTranscript(t *testing.T) {
	arch, err := store.OpenArchive(t.TempDir())
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer arch.Close()

	sink := &fakeSink{}
	ctrl := NewController(NewCoordinator(nil), sink, arch, nil)
	id := ctrl.NewSession()
	if err := ctrl.Send("hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	ctx := context.Background()
	if err := ctrl.DeleteSession(ctx, id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if ctrl.Current() != "" {
		t.Fatalf("current selection not cleared")
	}
	if _, err := ctrl.Coordinator().Snapshot(id); !errors.Is(err, api.ErrUnknownSession) {
		t.Fatalf("session still live after delete: %v", err)
	}

	infos, err := arch.List(ctx)
	if err != nil {
		t.Fatalf("archive list: %v", err)
	}
	if len(infos) != 1 || infos[0].SessionID != id || infos[0].EntryCount != 1 {
		t.Fatalf("transcript not archived: %+v", infos)
	}

	entries, err := arch.Load(ctx, id)
	if err != nil || len(entries) != 1 || entries[0].Message.Content != "hello" {
		t.Fatalf("archived transcript wrong: %+v %v", entries, err)
	}
}

func TestSinkFailureSurfacesAsSessionError(t *testing.T) {
	sink := &fakeSink{err: errors.New("pipe closed")}
	ctrl := newTestController(sink)
	ctrl.NewSession()

	if err := ctrl.Send("hi"); err != nil {
		t.Fatalf("local append must succeed even when the sink fails: %v", err)
	}
	snap, _ := ctrl.Snapshot()
	if snap.LastError == nil || snap.LastError.Code != api.ErrCodeSinkFailure {
		t.Fatalf("sink failure not surfaced: %+v", snap.LastError)
	}
}
