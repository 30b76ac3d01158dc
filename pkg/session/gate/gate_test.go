package gate

import (
	"errors"
	"testing"

	"ClusterDesk/pkg/session/api"
)

func required(reqID string) api.ApprovalRequiredPayload {
	return api.ApprovalRequiredPayload{
		RequestID: reqID,
		Reason:    "mutates cluster state",
		Severity:  api.SeverityHigh,
		ToolInput: []byte(`{"command":"kubectl delete pod x"}`),
	}
}

func TestSingleSlotFlow(t *testing.T) {
	g := New()
	if g.Awaiting() {
		t.Fatalf("gate must start idle")
	}

	req, anom := g.OnRequired(required("r1"))
	if anom != nil {
		t.Fatalf("unexpected anomaly: %+v", anom)
	}
	if !g.Awaiting() || req.RequestID != "r1" || req.Resolved {
		t.Fatalf("unexpected request: %+v", req)
	}

	resolved, err := g.Respond("r1", true)
	if err != nil {
		t.Fatalf("respond failed: %v", err)
	}
	if !resolved.Resolved || !resolved.Approved {
		t.Fatalf("unexpected resolution: %+v", resolved)
	}
	if g.Awaiting() {
		t.Fatalf("gate must return to idle")
	}
}

func TestDuplicateRequestIsAnomalyNotReplacement(t *testing.T) {
	g := New()
	g.OnRequired(required("r1"))

	_, anom := g.OnRequired(required("r2"))
	if anom == nil || anom.Code != api.AnomalyDuplicateApproval {
		t.Fatalf("expected duplicate-approval anomaly, got %+v", anom)
	}

	// The original slot must be intact and still resolvable.
	out, ok := g.Outstanding()
	if !ok || out.RequestID != "r1" {
		t.Fatalf("original request lost: %+v", out)
	}
	if _, err := g.Respond("r1", false); err != nil {
		t.Fatalf("original request not resolvable: %v", err)
	}
}

func TestStaleRespondIsNoOp(t *testing.T) {
	g := New()

	if _, err := g.Respond("r1", true); !errors.Is(err, api.ErrNoPendingApproval) {
		t.Fatalf("expected ErrNoPendingApproval, got %v", err)
	}

	g.OnRequired(required("r1"))
	if _, err := g.Respond("r9", true); !errors.Is(err, api.ErrStaleApproval) {
		t.Fatalf("expected ErrStaleApproval, got %v", err)
	}
	if !g.Awaiting() {
		t.Fatalf("stale respond must not clear the slot")
	}
}

func TestOnResponseMatchesOutstanding(t *testing.T) {
	g := New()
	g.OnRequired(required("r1"))

	resolved, anom := g.OnResponse(api.ApprovalResponsePayload{RequestID: "r1", Approved: false})
	if anom != nil {
		t.Fatalf("unexpected anomaly: %+v", anom)
	}
	if !resolved.Resolved || resolved.Approved {
		t.Fatalf("unexpected resolution: %+v", resolved)
	}

	_, anom = g.OnResponse(api.ApprovalResponsePayload{RequestID: "r1", Approved: true})
	if anom == nil || anom.Code != api.AnomalyStaleApproval {
		t.Fatalf("expected stale-approval anomaly, got %+v", anom)
	}
}

func TestCancelImplicitlyDenies(t *testing.T) {
	g := New()
	if _, ok := g.Cancel(); ok {
		t.Fatalf("cancel on idle gate must report nothing")
	}

	g.OnRequired(required("r1"))
	resolved, ok := g.Cancel()
	if !ok || !resolved.Resolved || resolved.Approved {
		t.Fatalf("cancel must resolve as denied: %+v ok=%v", resolved, ok)
	}
	if g.Awaiting() {
		t.Fatalf("gate must be idle after cancel")
	}
}
