// Package api defines the stable public types for the agent session layer.
// All external interactions with the session runtime use these types.
package api

import (
	"encoding/json"
	"time"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Lifecycle
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Lifecycle is the session lifecycle state. Ended is terminal.
type Lifecycle string

const (
	LifecycleActive Lifecycle = "active"
	LifecycleEnded  Lifecycle = "ended"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Tool Status
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// ToolStatus is the lifecycle status of a tool execution.
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolFailed    ToolStatus = "failed"
	ToolBlocked   ToolStatus = "blocked"
)

// Valid reports whether s is a known status.
func (s ToolStatus) Valid() bool {
	switch s {
	case ToolPending, ToolRunning, ToolCompleted, ToolFailed, ToolBlocked:
		return true
	}
	return false
}

// Terminal reports whether s permits no further transitions.
func (s ToolStatus) Terminal() bool {
	return s == ToolCompleted || s == ToolFailed || s == ToolBlocked
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Severity
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Severity grades an approval request.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Message Entries
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// EntryKind discriminates MessageEntry variants.
type EntryKind string

const (
	EntryMessage       EntryKind = "message"
	EntryToolExecution EntryKind = "tool_execution"
	EntryApproval      EntryKind = "approval"
)

// Role identifies the author of a plain message entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageBody is the plain-text message variant.
type MessageBody struct {
	Role     Role   `json:"role"`
	Content  string `json:"content"`
	Complete bool   `json:"complete"`
}

// ToolExecutionRecord tracks one tool call from request to terminal outcome.
type ToolExecutionRecord struct {
	RequestID      string     `json:"request_id"`
	ToolName       string     `json:"tool_name"`
	Status         ToolStatus `json:"status"`
	CommandPreview string     `json:"command_preview,omitempty"`
	Output         string     `json:"output,omitempty"`
}

// ApprovalRequest is the single-slot user consent request for a tool call.
type ApprovalRequest struct {
	RequestID string          `json:"request_id"`
	Reason    string          `json:"reason,omitempty"`
	Severity  Severity        `json:"severity"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
	Resolved  bool            `json:"resolved"`
	Approved  bool            `json:"approved"`
}

// MessageEntry is one element of the conversation log. Exactly one of
// Message, Tool, Approval is non-nil, matching Kind. Entries are append-only;
// updates mutate the payload in place and never change position.
type MessageEntry struct {
	ID        string    `json:"id"`
	Kind      EntryKind `json:"kind"`
	CreatedAt time.Time `json:"created_at"`

	Message  *MessageBody         `json:"message,omitempty"`
	Tool     *ToolExecutionRecord `json:"tool,omitempty"`
	Approval *ApprovalRequest     `json:"approval,omitempty"`
}

// Clone returns a deep copy. Snapshots hand cloned entries to consumers so
// no external component holds mutable references into session state.
func (e MessageEntry) Clone() MessageEntry {
	out := e
	if e.Message != nil {
		m := *e.Message
		out.Message = &m
	}
	if e.Tool != nil {
		t := *e.Tool
		out.Tool = &t
	}
	if e.Approval != nil {
		a := *e.Approval
		if len(e.Approval.ToolInput) > 0 {
			a.ToolInput = append(json.RawMessage(nil), e.Approval.ToolInput...)
		}
		out.Approval = &a
	}
	return out
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Snapshot
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// ErrorInfo is the dismissible last-error state of a session.
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Snapshot is the derived read-only view of one session, recomputed after
// each applied event. Consumers never mutate session state through it.
type Snapshot struct {
	SessionID string         `json:"session_id"`
	Lifecycle Lifecycle      `json:"lifecycle"`
	Seq       int64          `json:"seq"` // count of applied mutations
	Messages  []MessageEntry `json:"messages"`
	Streaming bool           `json:"streaming"`
	Thinking  bool           `json:"thinking"`

	PendingApproval *ApprovalRequest `json:"pending_approval,omitempty"`
	LastError       *ErrorInfo       `json:"last_error,omitempty"`
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Anomalies
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Anomaly codes. An anomaly is a well-formed event that violates an
// ordering or uniqueness invariant; it is recorded, never fatal.
const (
	AnomalyDuplicateTerminal = "duplicate_terminal_status"
	AnomalyNonMonotonic      = "non_monotonic_status"
	AnomalyTerminalFirstSeen = "terminal_on_first_sight"
	AnomalyDuplicateApproval = "duplicate_approval"
	AnomalyStaleApproval     = "stale_approval"
	AnomalyPostEnded         = "post_ended_event"
	AnomalyDecode            = "decode_failure"
	AnomalyUnknownEvent      = "unknown_event_type"
)

// Anomaly is one recorded protocol anomaly, consumable by diagnostics.
type Anomaly struct {
	SessionID string    `json:"session_id,omitempty"`
	Code      string    `json:"code"`
	Detail    string    `json:"detail"`
	At        time.Time `json:"at"`
}
