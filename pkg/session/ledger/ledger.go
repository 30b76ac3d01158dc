// Package ledger tracks per-request-id tool execution lifecycle. The ledger
// stays resilient to duplicate and out-of-order backend retries: transitions
// violating monotonicity are rejected and reported as anomalies, never
// propagated as session errors.
package ledger

import (
	"fmt"

	"ClusterDesk/pkg/session/api"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Transition Graph
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// statusRank orders statuses for the monotonic-transition check:
// pending → running → (completed|failed), pending → blocked.
// Terminal statuses permit no further transitions.
var statusRank = map[api.ToolStatus]int{
	api.ToolPending:   0,
	api.ToolRunning:   1,
	api.ToolCompleted: 2,
	api.ToolFailed:    2,
	api.ToolBlocked:   2,
}

// allowed reports whether from → to is a legal transition. Equal non-terminal
// statuses are legal so a running retry can merge incremental output.
func allowed(from, to api.ToolStatus) bool {
	if from.Terminal() {
		return false
	}
	if from == to {
		return true
	}
	if to == api.ToolBlocked {
		// Blocked is reachable only from pending: policy blocks happen
		// before the tool starts.
		return from == api.ToolPending
	}
	return statusRank[to] > statusRank[from]
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Ledger
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Ledger tracks tool executions for one session, in insertion order.
// Not safe for concurrent use; the owning session worker serializes access.
type Ledger struct {
	records map[string]*api.ToolExecutionRecord
	order   []string
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{records: make(map[string]*api.ToolExecutionRecord)}
}

// Result describes the effect of applying one event to the ledger.
type Result struct {
	Record  api.ToolExecutionRecord // state after application (or unchanged state on rejection)
	Created bool                    // a new record was inserted
	Applied bool                    // the event mutated the record
	Anomaly *api.Anomaly            // non-nil when the event was out of contract
}

// Record applies a tool execution event. Unseen request ids insert a new
// record; a first sight at a terminal status is accepted as a fire-and-report
// but noted as an anomaly. Known request ids update status and output under
// the monotonic-transition rule; a rejected transition leaves state unchanged.
func (l *Ledger) Record(p api.ToolExecutionPayload) Result {
	rec, ok := l.records[p.RequestID]
	if !ok {
		rec = &api.ToolExecutionRecord{
			RequestID:      p.RequestID,
			ToolName:       p.ToolName,
			Status:         p.Status,
			CommandPreview: p.CommandPreview,
			Output:         p.Output,
		}
		l.records[p.RequestID] = rec
		l.order = append(l.order, p.RequestID)

		res := Result{Record: *rec, Created: true, Applied: true}
		if p.Status.Terminal() {
			res.Anomaly = anomaly(api.AnomalyTerminalFirstSeen,
				"request %s first seen at terminal status %s", p.RequestID, p.Status)
		}
		return res
	}

	if !allowed(rec.Status, p.Status) {
		code := api.AnomalyNonMonotonic
		if rec.Status.Terminal() {
			code = api.AnomalyDuplicateTerminal
		}
		return Result{Record: *rec, Anomaly: anomaly(code,
			"request %s: illegal transition %s → %s", p.RequestID, rec.Status, p.Status)}
	}

	rec.Status = p.Status
	if p.Output != "" {
		rec.Output = p.Output
	}
	if p.CommandPreview != "" {
		rec.CommandPreview = p.CommandPreview
	}
	return Result{Record: *rec, Applied: true}
}

// Blocked marks the record blocked with the given reason. Blocked is terminal
// and independent of the approval flow. A block for an unseen request id
// inserts a blocked record (fire-and-report); a block after a terminal status
// is rejected as an anomaly.
func (l *Ledger) Blocked(p api.ToolBlockedPayload) Result {
	rec, ok := l.records[p.RequestID]
	if !ok {
		rec = &api.ToolExecutionRecord{
			RequestID: p.RequestID,
			Status:    api.ToolBlocked,
			Output:    p.Reason,
		}
		l.records[p.RequestID] = rec
		l.order = append(l.order, p.RequestID)
		return Result{
			Record:  *rec,
			Created: true,
			Applied: true,
			Anomaly: anomaly(api.AnomalyTerminalFirstSeen,
				"request %s first seen as blocked", p.RequestID),
		}
	}

	if !allowed(rec.Status, api.ToolBlocked) {
		code := api.AnomalyNonMonotonic
		if rec.Status.Terminal() {
			code = api.AnomalyDuplicateTerminal
		}
		return Result{Record: *rec, Anomaly: anomaly(code,
			"request %s: blocked after %s", p.RequestID, rec.Status)}
	}

	rec.Status = api.ToolBlocked
	if p.Reason != "" {
		rec.Output = p.Reason
	}
	return Result{Record: *rec, Applied: true}
}

// Get returns a copy of the record for a request id.
func (l *Ledger) Get(requestID string) (api.ToolExecutionRecord, bool) {
	rec, ok := l.records[requestID]
	if !ok {
		return api.ToolExecutionRecord{}, false
	}
	return *rec, true
}

// Executions returns copies of all records in insertion order, matching
// MessageEntry insertion order.
func (l *Ledger) Executions() []api.ToolExecutionRecord {
	out := make([]api.ToolExecutionRecord, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.records[id])
	}
	return out
}

func anomaly(code, format string, args ...interface{}) *api.Anomaly {
	return &api.Anomaly{Code: code, Detail: fmt.Sprintf(format, args...)}
}
