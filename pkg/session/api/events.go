package api

import "encoding/json"

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Envelope
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Envelope is the raw inbound unit as delivered by the agent backend,
// before decoding. Data is payload JSON whose shape depends on Type.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Event Types
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// EventType identifies the kind of decoded event.
type EventType string

const (
	EventMessageChunk     EventType = "message_chunk"
	EventThinking         EventType = "thinking"
	EventToolExecution    EventType = "tool_execution"
	EventApprovalRequired EventType = "approval_required"
	EventApprovalResponse EventType = "approval_response"
	EventToolBlocked      EventType = "tool_blocked"
	EventError            EventType = "error"
	EventSessionEnded     EventType = "session_ended"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Event (Strict Union)
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Event is the decoded event union. Exactly one payload is non-nil,
// matching Type. Events are produced by the decoder, never constructed
// from raw JSON by consumers.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`

	MessageChunk     *MessageChunkPayload     `json:"message_chunk,omitempty"`
	Thinking         *ThinkingPayload         `json:"thinking,omitempty"`
	ToolExecution    *ToolExecutionPayload    `json:"tool_execution,omitempty"`
	ApprovalRequired *ApprovalRequiredPayload `json:"approval_required,omitempty"`
	ApprovalResponse *ApprovalResponsePayload `json:"approval_response,omitempty"`
	ToolBlocked      *ToolBlockedPayload      `json:"tool_blocked,omitempty"`
	Error            *ErrorPayload            `json:"error,omitempty"`
	SessionEnded     *SessionEndedPayload     `json:"session_ended,omitempty"`
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Payload Types
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// MessageChunkPayload carries an incremental fragment of assistant output.
// Done marks the end of the in-flight assistant message.
type MessageChunkPayload struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
}

// ThinkingPayload toggles the transient thinking indicator. It produces
// no persisted conversation artifact.
type ThinkingPayload struct {
	Active bool `json:"active"`
}

// ToolExecutionPayload reports tool-call lifecycle progress keyed by RequestID.
type ToolExecutionPayload struct {
	RequestID      string     `json:"request_id"`
	ToolName       string     `json:"tool_name"`
	Status         ToolStatus `json:"status"`
	CommandPreview string     `json:"command_preview,omitempty"`
	Output         string     `json:"output,omitempty"`
}

// ApprovalRequiredPayload asks the user to approve a tool call before it runs.
type ApprovalRequiredPayload struct {
	RequestID string          `json:"request_id"`
	Reason    string          `json:"reason,omitempty"`
	Severity  Severity        `json:"severity"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
}

// ApprovalResponsePayload echoes an approval resolution back on the event
// channel. It may originate from another UI surface of the same session.
type ApprovalResponsePayload struct {
	RequestID string `json:"request_id"`
	Approved  bool   `json:"approved"`
}

// ToolBlockedPayload reports a policy-level block of a tool call. This is
// terminal and independent of the user approval flow.
type ToolBlockedPayload struct {
	RequestID string `json:"request_id"`
	Reason    string `json:"reason,omitempty"`
}

// ErrorPayload carries a backend-reported session error. It does not end
// the session.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// SessionEndedPayload marks the unconditional end of a session.
type SessionEndedPayload struct {
	Reason string `json:"reason,omitempty"`
}
