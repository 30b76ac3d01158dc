package backend

import (
	"context"
	"testing"
	"time"

	"ClusterDesk/pkg/session/api"
	"ClusterDesk/pkg/session/runtime"
)

func waitFor(t *testing.T, sub <-chan api.Snapshot, sessionID string, cond func(api.Snapshot) bool) api.Snapshot {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case snap := <-sub:
			if snap.SessionID == sessionID && cond(snap) {
				return snap
			}
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot")
		}
	}
}

func settled(s api.Snapshot) bool {
	return !s.Streaming && !s.Thinking && s.PendingApproval == nil && len(s.Messages) > 1
}

func startLoopback(t *testing.T) (*runtime.Controller, <-chan api.Snapshot, string) {
	t.Helper()
	lb := NewLoopback(0)
	t.Cleanup(func() { _ = lb.Close() })

	ctrl := runtime.NewController(runtime.NewCoordinator(nil), lb, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ctrl.Coordinator().Run(ctx, lb.Stream())

	sub, unsubscribe := ctrl.Subscribe()
	t.Cleanup(unsubscribe)

	id := ctrl.NewSession()
	return ctrl, sub, id
}

func TestLoopbackPodQuery(t *testing.T) {
	ctrl, sub, id := startLoopback(t)

	if err := ctrl.Send("show me the pods"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	snap := waitFor(t, sub, id, settled)

	var sawTool, sawAnswer bool
	for _, e := range snap.Messages {
		if e.Kind == api.EntryToolExecution && e.Tool.Status == api.ToolCompleted {
			sawTool = true
		}
		if e.Kind == api.EntryMessage && e.Message.Role == api.RoleAssistant && e.Message.Complete {
			sawAnswer = true
		}
	}
	if !sawTool || !sawAnswer {
		t.Fatalf("scripted pod flow incomplete: tool=%v answer=%v (%d entries)", sawTool, sawAnswer, len(snap.Messages))
	}
}

func TestLoopbackApprovalApproved(t *testing.T) {
	ctrl, sub, id := startLoopback(t)

	if err := ctrl.Send("delete the worker pod"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	snap := waitFor(t, sub, id, func(s api.Snapshot) bool { return s.PendingApproval != nil })
	req := snap.PendingApproval
	if req.Severity != api.SeverityHigh {
		t.Fatalf("destructive action must be high severity: %+v", req)
	}

	if err := ctrl.Approve(req.RequestID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	snap = waitFor(t, sub, id, settled)

	var completed bool
	for _, e := range snap.Messages {
		if e.Kind == api.EntryToolExecution && e.Tool.RequestID == req.RequestID && e.Tool.Status == api.ToolCompleted {
			completed = true
		}
	}
	if !completed {
		t.Fatalf("approved tool never completed: %+v", snap.Messages)
	}
}

func TestLoopbackApprovalDenied(t *testing.T) {
	ctrl, sub, id := startLoopback(t)

	if err := ctrl.Send("drain node-2"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	snap := waitFor(t, sub, id, func(s api.Snapshot) bool { return s.PendingApproval != nil })
	req := snap.PendingApproval

	if err := ctrl.Deny(req.RequestID); err != nil {
		t.Fatalf("deny failed: %v", err)
	}
	snap = waitFor(t, sub, id, settled)

	var blocked bool
	for _, e := range snap.Messages {
		if e.Kind == api.EntryToolExecution && e.Tool.RequestID == req.RequestID && e.Tool.Status == api.ToolBlocked {
			blocked = true
		}
	}
	if !blocked {
		t.Fatalf("denied tool not blocked: %+v", snap.Messages)
	}
}
