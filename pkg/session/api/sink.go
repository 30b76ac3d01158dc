package api

import "context"

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Event Source
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// EnvelopeStream delivers raw inbound envelopes from the agent backend.
// Recv returns io.EOF when the stream ends.
type EnvelopeStream interface {
	Recv(ctx context.Context) (Envelope, error)
	Close() error
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Command Sink
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// LifecycleOp is a session-lifecycle command verb.
type LifecycleOp string

const (
	LifecycleNew    LifecycleOp = "new"
	LifecycleSelect LifecycleOp = "select"
	LifecycleDelete LifecycleOp = "delete"
	LifecycleClear  LifecycleOp = "clear"
)

// CommandSink is the outbound boundary to the agent backend. All calls are
// fire-and-forget: they enqueue a command and return without waiting for the
// corresponding inbound event. A returned error reports transport failure
// only; the session state machine never consumes a synchronous result.
type CommandSink interface {
	// StartTurn begins a new conversation turn with the user's text.
	StartTurn(sessionID, text string) error

	// Interrupt signals cooperative cancellation of the in-flight turn.
	Interrupt(sessionID string) error

	// ApprovalResponse resolves an outstanding approval request.
	ApprovalResponse(sessionID, requestID string, approved bool) error

	// SessionLifecycle issues a new/select/delete/clear command.
	SessionLifecycle(op LifecycleOp, sessionID string) error
}
