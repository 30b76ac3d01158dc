package api

import "errors"

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Standard Error Codes
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

const (
	ErrCodeEmptyInput        = "empty_input"
	ErrCodeBusy              = "busy"
	ErrCodeUnknownSession    = "unknown_session"
	ErrCodeSessionEnded      = "session_ended"
	ErrCodeStaleApproval     = "stale_approval"
	ErrCodeNoPendingApproval = "no_pending_approval"
	ErrCodeDecode            = "decode_error"
	ErrCodeSinkFailure       = "sink_failure"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Sentinel Errors
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Controller-call rejections. These are returned synchronously to the caller
// and never mutate session state.
var (
	// ErrEmptyInput rejects a send of whitespace-only text.
	ErrEmptyInput = errors.New(ErrCodeEmptyInput + ": message text is empty")

	// ErrBusy rejects a send while a turn is already streaming.
	ErrBusy = errors.New(ErrCodeBusy + ": a turn is already in progress")

	// ErrUnknownSession rejects an operation on a session id that is not tracked.
	ErrUnknownSession = errors.New(ErrCodeUnknownSession + ": no such session")

	// ErrSessionEnded rejects an operation on an ended session.
	ErrSessionEnded = errors.New(ErrCodeSessionEnded + ": session has ended")

	// ErrStaleApproval rejects a respond whose request id does not match the
	// outstanding approval request.
	ErrStaleApproval = errors.New(ErrCodeStaleApproval + ": request id does not match outstanding approval")

	// ErrNoPendingApproval rejects a respond while the gate is idle.
	ErrNoPendingApproval = errors.New(ErrCodeNoPendingApproval + ": no outstanding approval request")
)
