// Package runtime owns session state: the per-session state machine, the
// coordinator that serializes event application, and the public controller.
package runtime

import (
	"time"

	"github.com/google/uuid"

	"ClusterDesk/pkg/session/api"
	"ClusterDesk/pkg/session/assemble"
	"ClusterDesk/pkg/session/gate"
	"ClusterDesk/pkg/session/ledger"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Machine
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Machine is the state machine for one session. It owns the ordered message
// list, the streaming and thinking flags, the error state, and the session
// lifecycle, and composes the stream assembler, tool ledger, and approval
// gate. Not safe for concurrent use; the owning worker serializes access.
type Machine struct {
	id        string
	lifecycle api.Lifecycle
	entries   []api.MessageEntry
	index     map[string]int // namespaced entry key → position
	streaming bool
	lastError *api.ErrorInfo
	seq       int64

	asm  *assemble.Assembler
	lgr  *ledger.Ledger
	gate *gate.Gate
}

// NewMachine creates an active, empty session.
func NewMachine(id string) *Machine {
	return &Machine{
		id:        id,
		lifecycle: api.LifecycleActive,
		index:     make(map[string]int),
		asm:       assemble.New(),
		lgr:       ledger.New(),
		gate:      gate.New(),
	}
}

// ID returns the session identifier.
func (m *Machine) ID() string { return m.id }

// Ended reports whether the session lifecycle is terminal.
func (m *Machine) Ended() bool { return m.lifecycle == api.LifecycleEnded }

// Streaming reports whether a turn is in flight.
func (m *Machine) Streaming() bool { return m.streaming }

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Event Application
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Apply routes one decoded event to exactly one sub-component and updates
// derived state incrementally. Once the session has ended every further
// event is dropped and recorded as an anomaly; anomalies from
// sub-components are returned to the caller for recording, never thrown.
func (m *Machine) Apply(ev api.Event) (applied bool, anomalies []api.Anomaly) {
	if m.lifecycle == api.LifecycleEnded {
		return false, []api.Anomaly{{
			SessionID: m.id,
			Code:      api.AnomalyPostEnded,
			Detail:    "event " + string(ev.Type) + " received after session ended",
		}}
	}

	switch ev.Type {
	case api.EventMessageChunk:
		u, ok := m.asm.OnChunk(ev.MessageChunk.Content, ev.MessageChunk.Done)
		if !ok {
			// Duplicate finalization; never creates a second entry.
			return false, nil
		}
		m.applyStream(u)
		applied = true

	case api.EventThinking:
		m.asm.OnThinking(ev.Thinking.Active)
		applied = true

	case api.EventToolExecution:
		res := m.lgr.Record(*ev.ToolExecution)
		if res.Anomaly != nil {
			res.Anomaly.SessionID = m.id
			anomalies = append(anomalies, *res.Anomaly)
		}
		if res.Applied {
			m.upsertTool(res.Record)
			applied = true
		}

	case api.EventToolBlocked:
		res := m.lgr.Blocked(*ev.ToolBlocked)
		if res.Anomaly != nil {
			res.Anomaly.SessionID = m.id
			anomalies = append(anomalies, *res.Anomaly)
		}
		if res.Applied {
			m.upsertTool(res.Record)
			applied = true
		}

	case api.EventApprovalRequired:
		req, anom := m.gate.OnRequired(*ev.ApprovalRequired)
		if anom != nil {
			anom.SessionID = m.id
			return false, []api.Anomaly{*anom}
		}
		m.appendApproval(req)
		applied = true

	case api.EventApprovalResponse:
		resolved, anom := m.gate.OnResponse(*ev.ApprovalResponse)
		if anom != nil {
			anom.SessionID = m.id
			return false, []api.Anomaly{*anom}
		}
		m.resolveApproval(resolved)
		applied = true

	case api.EventError:
		m.lastError = &api.ErrorInfo{Code: ev.Error.Code, Message: ev.Error.Message}
		applied = true

	case api.EventSessionEnded:
		m.end()
		applied = true
	}

	if applied {
		m.seq++
	}
	return applied, anomalies
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Controller-Driven Mutations
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// AppendUser appends a user message entry and marks the turn in flight.
// text must already be trimmed; it is rejected if empty, if a turn is
// already streaming, or if the session has ended.
func (m *Machine) AppendUser(text string) error {
	if m.lifecycle == api.LifecycleEnded {
		return api.ErrSessionEnded
	}
	if text == "" {
		return api.ErrEmptyInput
	}
	if m.streaming {
		return api.ErrBusy
	}
	m.appendEntry(api.MessageEntry{
		ID:        "msg_" + uuid.NewString(),
		Kind:      api.EntryMessage,
		CreatedAt: time.Now(),
		Message:   &api.MessageBody{Role: api.RoleUser, Content: text, Complete: true},
	})
	m.streaming = true
	m.seq++
	return nil
}

// Interrupt finalizes the in-flight stream buffer and implicitly denies any
// outstanding approval. It reports whether anything was interrupted; calling
// it on a quiescent session is a no-op. The canceled approval, if any, is
// returned so the caller can notify the backend of the implicit denial.
func (m *Machine) Interrupt() (canceled api.ApprovalRequest, hadApproval, active bool) {
	if m.lifecycle == api.LifecycleEnded {
		return api.ApprovalRequest{}, false, false
	}
	active = m.streaming || m.asm.InFlight() || m.asm.Thinking() || m.gate.Awaiting()
	if !active {
		return api.ApprovalRequest{}, false, false
	}
	if u, ok := m.asm.Finalize(); ok {
		m.applyStream(u)
	}
	if resolved, ok := m.gate.Cancel(); ok {
		m.resolveApproval(resolved)
		canceled, hadApproval = resolved, true
	}
	m.asm.OnThinking(false)
	m.streaming = false
	m.seq++
	return canceled, hadApproval, true
}

// Respond resolves the outstanding approval request with the user's
// decision and updates the matching approval entry in place.
func (m *Machine) Respond(requestID string, approved bool) (api.ApprovalRequest, error) {
	if m.lifecycle == api.LifecycleEnded {
		return api.ApprovalRequest{}, api.ErrSessionEnded
	}
	resolved, err := m.gate.Respond(requestID, approved)
	if err != nil {
		return api.ApprovalRequest{}, err
	}
	m.resolveApproval(resolved)
	m.seq++
	return resolved, nil
}

// SetError records a locally detected error, e.g. a command sink failure.
func (m *Machine) SetError(info api.ErrorInfo) {
	m.lastError = &info
	m.seq++
}

// DismissError clears the last error without altering message history.
func (m *Machine) DismissError() {
	if m.lastError == nil {
		return
	}
	m.lastError = nil
	m.seq++
}

// End transitions the session to Ended locally, e.g. on deletion.
func (m *Machine) End() {
	if m.lifecycle == api.LifecycleEnded {
		return
	}
	m.end()
	m.seq++
}

// end freezes the session: the stream buffer is finalized so no streaming
// ghost entry survives, and an outstanding approval resolves as denied.
func (m *Machine) end() {
	if u, ok := m.asm.Finalize(); ok {
		m.applyStream(u)
	}
	if resolved, ok := m.gate.Cancel(); ok {
		m.resolveApproval(resolved)
	}
	m.asm.OnThinking(false)
	m.streaming = false
	m.lifecycle = api.LifecycleEnded
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Entry Maintenance
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (m *Machine) appendEntry(e api.MessageEntry) {
	m.index[entryKey(e)] = len(m.entries)
	m.entries = append(m.entries, e)
}

func entryKey(e api.MessageEntry) string {
	switch e.Kind {
	case api.EntryToolExecution:
		return "tool:" + e.Tool.RequestID
	case api.EntryApproval:
		return "appr:" + e.Approval.RequestID
	default:
		return "msg:" + e.ID
	}
}

// applyStream materializes an assembler update: the first chunk appends a
// streaming assistant entry, later chunks mutate it in place, and Done
// settles it. The streaming flag follows the buffer state.
func (m *Machine) applyStream(u assemble.Update) {
	if i, ok := m.index["msg:"+u.EntryID]; ok {
		body := m.entries[i].Message
		body.Content = u.Content
		body.Complete = u.Done
	} else {
		m.appendEntry(api.MessageEntry{
			ID:        u.EntryID,
			Kind:      api.EntryMessage,
			CreatedAt: time.Now(),
			Message:   &api.MessageBody{Role: api.RoleAssistant, Content: u.Content, Complete: u.Done},
		})
	}
	m.streaming = !u.Done
}

func (m *Machine) upsertTool(rec api.ToolExecutionRecord) {
	if i, ok := m.index["tool:"+rec.RequestID]; ok {
		r := rec
		m.entries[i].Tool = &r
		return
	}
	r := rec
	m.appendEntry(api.MessageEntry{
		ID:        "tool_" + rec.RequestID,
		Kind:      api.EntryToolExecution,
		CreatedAt: time.Now(),
		Tool:      &r,
	})
}

func (m *Machine) appendApproval(req api.ApprovalRequest) {
	r := req
	m.appendEntry(api.MessageEntry{
		ID:        "appr_" + req.RequestID,
		Kind:      api.EntryApproval,
		CreatedAt: time.Now(),
		Approval:  &r,
	})
}

func (m *Machine) resolveApproval(resolved api.ApprovalRequest) {
	if i, ok := m.index["appr:"+resolved.RequestID]; ok {
		a := m.entries[i].Approval
		a.Resolved = true
		a.Approved = resolved.Approved
	}
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Snapshot
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Snapshot derives the read-only view of the session. Entries are cloned so
// consumers never hold mutable references into machine state; the scalar
// fields are maintained incrementally and read as-is.
func (m *Machine) Snapshot() api.Snapshot {
	msgs := make([]api.MessageEntry, len(m.entries))
	for i, e := range m.entries {
		msgs[i] = e.Clone()
	}
	snap := api.Snapshot{
		SessionID: m.id,
		Lifecycle: m.lifecycle,
		Seq:       m.seq,
		Messages:  msgs,
		Streaming: m.streaming,
		Thinking:  m.asm.Thinking(),
	}
	if req, ok := m.gate.Outstanding(); ok {
		r := req
		snap.PendingApproval = &r
	}
	if m.lastError != nil {
		e := *m.lastError
		snap.LastError = &e
	}
	return snap
}

// Executions exposes the ledger view in insertion order.
func (m *Machine) Executions() []api.ToolExecutionRecord {
	return m.lgr.Executions()
}
