package ledger

import (
	"testing"

	"ClusterDesk/pkg/session/api"
)

func exec(reqID string, status api.ToolStatus, output string) api.ToolExecutionPayload {
	return api.ToolExecutionPayload{
		RequestID: reqID,
		ToolName:  "kubectl_get",
		Status:    status,
		Output:    output,
	}
}

func TestRecordLifecycle(t *testing.T) {
	l := New()

	res := l.Record(exec("r1", api.ToolPending, ""))
	if !res.Created || !res.Applied || res.Anomaly != nil {
		t.Fatalf("unexpected result: %+v", res)
	}

	res = l.Record(exec("r1", api.ToolRunning, ""))
	if res.Created || !res.Applied || res.Anomaly != nil {
		t.Fatalf("unexpected result: %+v", res)
	}

	res = l.Record(exec("r1", api.ToolCompleted, "3 pods"))
	if !res.Applied || res.Record.Output != "3 pods" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestTerminalStatesAreFrozen(t *testing.T) {
	tests := []struct {
		name     string
		terminal api.ToolStatus
		next     api.ToolStatus
		want     string
	}{
		{"completed then running", api.ToolCompleted, api.ToolRunning, api.AnomalyDuplicateTerminal},
		{"completed then failed", api.ToolCompleted, api.ToolFailed, api.AnomalyDuplicateTerminal},
		{"failed then completed", api.ToolFailed, api.ToolCompleted, api.AnomalyDuplicateTerminal},
		{"blocked then running", api.ToolBlocked, api.ToolRunning, api.AnomalyDuplicateTerminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			l.Record(exec("r1", api.ToolPending, ""))
			l.Record(exec("r1", tt.terminal, "first"))

			res := l.Record(exec("r1", tt.next, "late retry"))
			if res.Applied {
				t.Fatalf("terminal state mutated: %+v", res)
			}
			if res.Anomaly == nil || res.Anomaly.Code != tt.want {
				t.Fatalf("expected %s anomaly, got %+v", tt.want, res.Anomaly)
			}
			rec, _ := l.Get("r1")
			if rec.Status != tt.terminal || rec.Output != "first" {
				t.Fatalf("record changed after rejection: %+v", rec)
			}
		})
	}
}

func TestBackwardTransitionRejected(t *testing.T) {
	l := New()
	l.Record(exec("r1", api.ToolPending, ""))
	l.Record(exec("r1", api.ToolRunning, ""))

	res := l.Record(exec("r1", api.ToolPending, ""))
	if res.Applied || res.Anomaly == nil || res.Anomaly.Code != api.AnomalyNonMonotonic {
		t.Fatalf("backward transition accepted: %+v", res)
	}
}

func TestPendingSkipsToCompleted(t *testing.T) {
	// Fast tools may never report running.
	l := New()
	l.Record(exec("r1", api.ToolPending, ""))
	res := l.Record(exec("r1", api.ToolCompleted, "ok"))
	if !res.Applied || res.Anomaly != nil {
		t.Fatalf("pending → completed must be legal: %+v", res)
	}
}

func TestEqualStatusMergesOutput(t *testing.T) {
	l := New()
	l.Record(exec("r1", api.ToolRunning, "line 1"))
	res := l.Record(exec("r1", api.ToolRunning, "line 1\nline 2"))
	if !res.Applied || res.Record.Output != "line 1\nline 2" {
		t.Fatalf("incremental output lost: %+v", res)
	}
}

func TestFirstSightTerminalAcceptedWithAnomaly(t *testing.T) {
	l := New()
	res := l.Record(exec("r1", api.ToolFailed, "boom"))
	if !res.Created || !res.Applied {
		t.Fatalf("first-sight terminal must still insert: %+v", res)
	}
	if res.Anomaly == nil || res.Anomaly.Code != api.AnomalyTerminalFirstSeen {
		t.Fatalf("expected first-seen anomaly, got %+v", res.Anomaly)
	}
}

func TestBlockedOnlyFromPending(t *testing.T) {
	l := New()
	l.Record(exec("r1", api.ToolPending, ""))
	res := l.Blocked(api.ToolBlockedPayload{RequestID: "r1", Reason: "policy: no deletes"})
	if !res.Applied || res.Record.Status != api.ToolBlocked {
		t.Fatalf("block from pending rejected: %+v", res)
	}
	if res.Record.Output != "policy: no deletes" {
		t.Fatalf("block reason not recorded: %+v", res.Record)
	}

	l2 := New()
	l2.Record(exec("r2", api.ToolPending, ""))
	l2.Record(exec("r2", api.ToolRunning, ""))
	res = l2.Blocked(api.ToolBlockedPayload{RequestID: "r2", Reason: "too late"})
	if res.Applied || res.Anomaly == nil {
		t.Fatalf("block after running must be rejected: %+v", res)
	}
}

func TestExecutionsInsertionOrder(t *testing.T) {
	l := New()
	l.Record(exec("r1", api.ToolPending, ""))
	l.Record(exec("r2", api.ToolPending, ""))
	l.Record(exec("r1", api.ToolCompleted, "done"))
	l.Record(exec("r3", api.ToolPending, ""))

	got := l.Executions()
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	for i, want := range []string{"r1", "r2", "r3"} {
		if got[i].RequestID != want {
			t.Fatalf("order mismatch at %d: got %s want %s", i, got[i].RequestID, want)
		}
	}
}
