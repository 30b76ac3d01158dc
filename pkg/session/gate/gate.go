// Package gate holds the single-slot tool approval state machine:
// Idle → AwaitingApproval → Idle. At most one unresolved approval request
// exists per session at any time.
package gate

import (
	"encoding/json"
	"fmt"

	"ClusterDesk/pkg/session/api"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Gate
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Gate is the approval state machine for one session. Not safe for
// concurrent use; the owning session worker serializes access.
type Gate struct {
	pending *api.ApprovalRequest
}

// New creates a gate in the Idle state.
func New() *Gate {
	return &Gate{}
}

// Awaiting reports whether an approval request is outstanding.
func (g *Gate) Awaiting() bool {
	return g.pending != nil
}

// Outstanding returns a copy of the unresolved request, if any.
func (g *Gate) Outstanding() (api.ApprovalRequest, bool) {
	if g.pending == nil {
		return api.ApprovalRequest{}, false
	}
	return *g.pending, true
}

// OnRequired stores a new approval request and transitions to
// AwaitingApproval. If a request is already outstanding the new one is a
// protocol violation: it is reported as an anomaly and not stored, since the
// protocol never emits two concurrent unresolved approvals in one session.
func (g *Gate) OnRequired(p api.ApprovalRequiredPayload) (api.ApprovalRequest, *api.Anomaly) {
	if g.pending != nil {
		return api.ApprovalRequest{}, &api.Anomaly{
			Code: api.AnomalyDuplicateApproval,
			Detail: fmt.Sprintf("approval %s received while %s is still outstanding",
				p.RequestID, g.pending.RequestID),
		}
	}
	g.pending = &api.ApprovalRequest{
		RequestID: p.RequestID,
		Reason:    p.Reason,
		Severity:  p.Severity,
		ToolInput: append(json.RawMessage(nil), p.ToolInput...),
	}
	return *g.pending, nil
}

// Respond resolves the outstanding request. It is valid only while awaiting
// and only for the matching request id; a mismatched or stale id fails with
// ErrStaleApproval and is a no-op on state.
func (g *Gate) Respond(requestID string, approved bool) (api.ApprovalRequest, error) {
	if g.pending == nil {
		return api.ApprovalRequest{}, api.ErrNoPendingApproval
	}
	if g.pending.RequestID != requestID {
		return api.ApprovalRequest{}, api.ErrStaleApproval
	}
	g.pending.Resolved = true
	g.pending.Approved = approved
	resolved := *g.pending
	g.pending = nil
	return resolved, nil
}

// OnResponse applies an approval resolution echoed on the event channel,
// e.g. one issued from another surface of the same session. A response that
// matches nothing outstanding is recorded as a stale-approval anomaly.
func (g *Gate) OnResponse(p api.ApprovalResponsePayload) (api.ApprovalRequest, *api.Anomaly) {
	resolved, err := g.Respond(p.RequestID, p.Approved)
	if err != nil {
		return api.ApprovalRequest{}, &api.Anomaly{
			Code:   api.AnomalyStaleApproval,
			Detail: fmt.Sprintf("approval response for %s matches no outstanding request", p.RequestID),
		}
	}
	return resolved, nil
}

// Cancel implicitly resolves the outstanding request as denied and returns
// to Idle. Used when the session is interrupted or ends while awaiting: the
// agent process must not remain waiting on a vanished session.
func (g *Gate) Cancel() (api.ApprovalRequest, bool) {
	if g.pending == nil {
		return api.ApprovalRequest{}, false
	}
	g.pending.Resolved = true
	g.pending.Approved = false
	resolved := *g.pending
	g.pending = nil
	return resolved, true
}
