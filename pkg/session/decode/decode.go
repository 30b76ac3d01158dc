// Package decode validates and normalizes raw inbound envelopes into the
// closed set of typed session events. Decoding is pure: no side effects, no
// state. Malformed envelopes fail with *Error; unrecognized envelope types
// fail with ErrUnknownType so the dispatcher can drop them with a warning
// instead of treating them as fatal.
package decode

import (
	"encoding/json"
	"errors"
	"fmt"

	"ClusterDesk/pkg/session/api"
)

// ErrUnknownType marks an envelope whose type is not in the event catalogue.
// Forward compatibility: callers drop these, they do not propagate them.
var ErrUnknownType = errors.New("unknown event type")

// Error describes a malformed envelope of a recognized type.
type Error struct {
	Type   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: decode %s: %s", api.ErrCodeDecode, e.Type, e.Reason)
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Decoder
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Decode maps a raw envelope to exactly one typed event. Required fields are
// enforced per event type; field presence is detected with pointer targets so
// an absent field is distinguishable from a zero value.
func Decode(env api.Envelope) (api.Event, error) {
	switch api.EventType(env.Type) {
	case api.EventMessageChunk:
		return decodeMessageChunk(env)
	case api.EventThinking:
		return decodeThinking(env)
	case api.EventToolExecution:
		return decodeToolExecution(env)
	case api.EventApprovalRequired:
		return decodeApprovalRequired(env)
	case api.EventApprovalResponse:
		return decodeApprovalResponse(env)
	case api.EventToolBlocked:
		return decodeToolBlocked(env)
	case api.EventError:
		return decodeError(env)
	case api.EventSessionEnded:
		return decodeSessionEnded(env)
	default:
		return api.Event{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func unmarshalData(env api.Envelope, dst any) error {
	if len(env.Data) == 0 {
		return &Error{Type: env.Type, Reason: "missing data payload"}
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return &Error{Type: env.Type, Reason: fmt.Sprintf("malformed data: %v", err)}
	}
	return nil
}

func decodeMessageChunk(env api.Envelope) (api.Event, error) {
	var d struct {
		SessionID string  `json:"session_id"`
		Content   *string `json:"content"`
		Done      bool    `json:"done"`
	}
	if err := unmarshalData(env, &d); err != nil {
		return api.Event{}, err
	}
	if d.SessionID == "" {
		return api.Event{}, &Error{Type: env.Type, Reason: "session_id is required"}
	}
	if d.Content == nil {
		return api.Event{}, &Error{Type: env.Type, Reason: "content is required"}
	}
	return api.Event{
		Type:         api.EventMessageChunk,
		SessionID:    d.SessionID,
		MessageChunk: &api.MessageChunkPayload{Content: *d.Content, Done: d.Done},
	}, nil
}

func decodeThinking(env api.Envelope) (api.Event, error) {
	var d struct {
		SessionID string `json:"session_id"`
		Active    *bool  `json:"active"`
	}
	if err := unmarshalData(env, &d); err != nil {
		return api.Event{}, err
	}
	if d.SessionID == "" {
		return api.Event{}, &Error{Type: env.Type, Reason: "session_id is required"}
	}
	if d.Active == nil {
		return api.Event{}, &Error{Type: env.Type, Reason: "active is required"}
	}
	return api.Event{
		Type:      api.EventThinking,
		SessionID: d.SessionID,
		Thinking:  &api.ThinkingPayload{Active: *d.Active},
	}, nil
}

func decodeToolExecution(env api.Envelope) (api.Event, error) {
	var d struct {
		SessionID      string `json:"session_id"`
		RequestID      string `json:"request_id"`
		ToolName       string `json:"tool_name"`
		Status         string `json:"status"`
		CommandPreview string `json:"command_preview"`
		Output         string `json:"output"`
	}
	if err := unmarshalData(env, &d); err != nil {
		return api.Event{}, err
	}
	if d.SessionID == "" {
		return api.Event{}, &Error{Type: env.Type, Reason: "session_id is required"}
	}
	if d.RequestID == "" {
		return api.Event{}, &Error{Type: env.Type, Reason: "request_id is required"}
	}
	if d.ToolName == "" {
		return api.Event{}, &Error{Type: env.Type, Reason: "tool_name is required"}
	}
	status := api.ToolStatus(d.Status)
	if !status.Valid() {
		return api.Event{}, &Error{Type: env.Type, Reason: fmt.Sprintf("invalid status %q", d.Status)}
	}
	return api.Event{
		Type:      api.EventToolExecution,
		SessionID: d.SessionID,
		ToolExecution: &api.ToolExecutionPayload{
			RequestID:      d.RequestID,
			ToolName:       d.ToolName,
			Status:         status,
			CommandPreview: d.CommandPreview,
			Output:         d.Output,
		},
	}, nil
}

func decodeApprovalRequired(env api.Envelope) (api.Event, error) {
	var d struct {
		SessionID string          `json:"session_id"`
		RequestID string          `json:"request_id"`
		Reason    string          `json:"reason"`
		Severity  string          `json:"severity"`
		ToolInput json.RawMessage `json:"tool_input"`
	}
	if err := unmarshalData(env, &d); err != nil {
		return api.Event{}, err
	}
	if d.SessionID == "" {
		return api.Event{}, &Error{Type: env.Type, Reason: "session_id is required"}
	}
	if d.RequestID == "" {
		return api.Event{}, &Error{Type: env.Type, Reason: "request_id is required"}
	}
	severity := api.Severity(d.Severity)
	if !severity.Valid() {
		return api.Event{}, &Error{Type: env.Type, Reason: fmt.Sprintf("invalid severity %q", d.Severity)}
	}
	return api.Event{
		Type:      api.EventApprovalRequired,
		SessionID: d.SessionID,
		ApprovalRequired: &api.ApprovalRequiredPayload{
			RequestID: d.RequestID,
			Reason:    d.Reason,
			Severity:  severity,
			ToolInput: d.ToolInput,
		},
	}, nil
}

func decodeApprovalResponse(env api.Envelope) (api.Event, error) {
	var d struct {
		SessionID string `json:"session_id"`
		RequestID string `json:"request_id"`
		Approved  *bool  `json:"approved"`
	}
	if err := unmarshalData(env, &d); err != nil {
		return api.Event{}, err
	}
	if d.SessionID == "" {
		return api.Event{}, &Error{Type: env.Type, Reason: "session_id is required"}
	}
	if d.RequestID == "" {
		return api.Event{}, &Error{Type: env.Type, Reason: "request_id is required"}
	}
	if d.Approved == nil {
		return api.Event{}, &Error{Type: env.Type, Reason: "approved is required"}
	}
	return api.Event{
		Type:             api.EventApprovalResponse,
		SessionID:        d.SessionID,
		ApprovalResponse: &api.ApprovalResponsePayload{RequestID: d.RequestID, Approved: *d.Approved},
	}, nil
}

func decodeToolBlocked(env api.Envelope) (api.Event, error) {
	var d struct {
		SessionID string `json:"session_id"`
		RequestID string `json:"request_id"`
		Reason    string `json:"reason"`
	}
	if err := unmarshalData(env, &d); err != nil {
		return api.Event{}, err
	}
	if d.SessionID == "" {
		return api.Event{}, &Error{Type: env.Type, Reason: "session_id is required"}
	}
	if d.RequestID == "" {
		return api.Event{}, &Error{Type: env.Type, Reason: "request_id is required"}
	}
	return api.Event{
		Type:        api.EventToolBlocked,
		SessionID:   d.SessionID,
		ToolBlocked: &api.ToolBlockedPayload{RequestID: d.RequestID, Reason: d.Reason},
	}, nil
}

func decodeError(env api.Envelope) (api.Event, error) {
	var d struct {
		SessionID string `json:"session_id"`
		Code      string `json:"code"`
		Message   string `json:"message"`
	}
	if err := unmarshalData(env, &d); err != nil {
		return api.Event{}, err
	}
	if d.SessionID == "" {
		return api.Event{}, &Error{Type: env.Type, Reason: "session_id is required"}
	}
	if d.Message == "" {
		return api.Event{}, &Error{Type: env.Type, Reason: "message is required"}
	}
	return api.Event{
		Type:      api.EventError,
		SessionID: d.SessionID,
		Error:     &api.ErrorPayload{Code: d.Code, Message: d.Message},
	}, nil
}

func decodeSessionEnded(env api.Envelope) (api.Event, error) {
	var d struct {
		SessionID string `json:"session_id"`
		Reason    string `json:"reason"`
	}
	if err := unmarshalData(env, &d); err != nil {
		return api.Event{}, err
	}
	if d.SessionID == "" {
		return api.Event{}, &Error{Type: env.Type, Reason: "session_id is required"}
	}
	return api.Event{
		Type:         api.EventSessionEnded,
		SessionID:    d.SessionID,
		SessionEnded: &api.SessionEndedPayload{Reason: d.Reason},
	}, nil
}
