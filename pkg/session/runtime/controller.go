package runtime

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"ClusterDesk/pkg/logger"
	"ClusterDesk/pkg/session/api"
	"ClusterDesk/pkg/session/store"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Controller
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Controller is the session API surfaces talk to. State mutations apply
// locally first so the UI reflects them immediately; backend notifications
// go through the command sink fire-and-forget and the backend's own events
// reconcile any divergence.
type Controller struct {
	coord *Coordinator
	sink  api.CommandSink
	arch  *store.Archive // nil disables archiving
	log   store.EventLog

	mu      sync.Mutex
	current string
}

// NewController wires a controller over the coordinator's session table.
// arch may be nil when session archiving is disabled.
func NewController(coord *Coordinator, sink api.CommandSink, arch *store.Archive, log store.EventLog) *Controller {
	if log == nil {
		log = store.NopEventLog{}
	}
	return &Controller{coord: coord, sink: sink, arch: arch, log: log}
}

// Coordinator exposes the underlying coordinator, e.g. to run the pump.
func (c *Controller) Coordinator() *Coordinator { return c.coord }

// Subscribe registers a latest-wins snapshot channel.
func (c *Controller) Subscribe() (<-chan api.Snapshot, func()) {
	return c.coord.Subscribe()
}

// Anomalies returns recorded protocol anomalies, oldest first.
func (c *Controller) Anomalies() []api.Anomaly {
	return c.coord.Anomalies()
}

// reportSinkFailure surfaces a failed outbound command as the session's
// error banner. The command is already lost; the user decides whether to
// retry.
func (c *Controller) reportSinkFailure(id string, err error) {
	if err == nil {
		return
	}
	logger.Error("Sink", "outbound command failed", map[string]interface{}{
		"session_id": id,
		"error":      err.Error(),
	})
	_ = c.coord.Mutate(id, func(m *Machine) (bool, error) {
		m.SetError(api.ErrorInfo{Code: api.ErrCodeSinkFailure, Message: err.Error()})
		return true, nil
	})
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Session Lifecycle
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// NewSession creates a fresh session, makes it current and announces it to
// the backend. Returns the new session id.
func (c *Controller) NewSession() string {
	id := "sess_" + uuid.NewString()
	c.coord.Ensure(id)
	c.setCurrent(id)
	if err := c.sink.SessionLifecycle(api.LifecycleNew, id); err != nil {
		c.reportSinkFailure(id, err)
	}
	// Publish the empty snapshot so subscribers render the new session.
	_ = c.coord.Mutate(id, func(*Machine) (bool, error) { return true, nil })
	return id
}

// SelectSession makes an existing session current.
func (c *Controller) SelectSession(id string) error {
	if _, ok := c.coord.lookup(id); !ok {
		return api.ErrUnknownSession
	}
	c.setCurrent(id)
	if err := c.sink.SessionLifecycle(api.LifecycleSelect, id); err != nil {
		c.reportSinkFailure(id, err)
	}
	return c.coord.Mutate(id, func(*Machine) (bool, error) { return true, nil })
}

// DeleteSession ends a session, archives its transcript, removes its event
// log and drops it from the table. Deleting the current session clears the
// current selection.
func (c *Controller) DeleteSession(ctx context.Context, id string) error {
	snap, err := c.coord.Snapshot(id)
	if err != nil {
		return err
	}
	if c.arch != nil {
		if err := c.arch.Save(ctx, snap, "deleted"); err != nil {
			logger.Warn("Archive", "session archive failed", map[string]interface{}{
				"session_id": id,
				"error":      err.Error(),
			})
		}
	}
	_ = c.coord.Mutate(id, func(m *Machine) (bool, error) {
		m.End()
		return true, nil
	})
	c.coord.Remove(id)
	if err := c.log.Remove(ctx, id); err != nil {
		logger.Warn("EventLog", "event log removal failed", map[string]interface{}{
			"session_id": id,
			"error":      err.Error(),
		})
	}
	if err := c.sink.SessionLifecycle(api.LifecycleDelete, id); err != nil {
		logger.Warn("Sink", "delete notification failed", map[string]interface{}{
			"session_id": id,
			"error":      err.Error(),
		})
	}

	c.mu.Lock()
	if c.current == id {
		c.current = ""
	}
	c.mu.Unlock()
	return nil
}

// ClearAll deletes every live session.
func (c *Controller) ClearAll(ctx context.Context) {
	for _, snap := range c.coord.Sessions() {
		if err := c.DeleteSession(ctx, snap.SessionID); err != nil {
			logger.Warn("Session", "clear: delete failed", map[string]interface{}{
				"session_id": snap.SessionID,
				"error":      err.Error(),
			})
		}
	}
	if err := c.sink.SessionLifecycle(api.LifecycleClear, ""); err != nil {
		logger.Warn("Sink", "clear notification failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Current returns the current session id, or "" when none is selected.
func (c *Controller) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) setCurrent(id string) {
	c.mu.Lock()
	c.current = id
	c.mu.Unlock()
}

// Sessions lists snapshots of every live session.
func (c *Controller) Sessions() []api.Snapshot {
	return c.coord.Sessions()
}

// Snapshot returns the current session's view.
func (c *Controller) Snapshot() (api.Snapshot, error) {
	id := c.Current()
	if id == "" {
		return api.Snapshot{}, api.ErrUnknownSession
	}
	return c.coord.Snapshot(id)
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Turn Operations
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Send appends a user message to the current session and starts a turn.
// Empty or whitespace-only input is rejected with ErrEmptyInput; a session
// already streaming rejects with ErrBusy; neither mutates state.
func (c *Controller) Send(text string) error {
	trimmed := strings.TrimSpace(text)
	id := c.Current()
	if id == "" {
		return api.ErrUnknownSession
	}
	err := c.coord.Mutate(id, func(m *Machine) (bool, error) {
		if err := m.AppendUser(trimmed); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	c.reportSinkFailure(id, c.sink.StartTurn(id, trimmed))
	return nil
}

// Interrupt cancels the current session's in-flight turn. A pending approval
// is implicitly denied and the denial is forwarded to the backend so the
// agent process does not stay parked on a vanished prompt. Interrupting a
// quiescent session is a no-op.
func (c *Controller) Interrupt() error {
	id := c.Current()
	if id == "" {
		return api.ErrUnknownSession
	}
	var canceled api.ApprovalRequest
	var hadApproval, active bool
	err := c.coord.Mutate(id, func(m *Machine) (bool, error) {
		canceled, hadApproval, active = m.Interrupt()
		return active, nil
	})
	if err != nil {
		return err
	}
	if !active {
		return nil
	}
	if hadApproval {
		c.reportSinkFailure(id, c.sink.ApprovalResponse(id, canceled.RequestID, false))
	}
	c.reportSinkFailure(id, c.sink.Interrupt(id))
	return nil
}

// Approve resolves the pending approval request affirmatively.
func (c *Controller) Approve(requestID string) error {
	return c.respond(requestID, true)
}

// Deny resolves the pending approval request negatively.
func (c *Controller) Deny(requestID string) error {
	return c.respond(requestID, false)
}

func (c *Controller) respond(requestID string, approved bool) error {
	id := c.Current()
	if id == "" {
		return api.ErrUnknownSession
	}
	err := c.coord.Mutate(id, func(m *Machine) (bool, error) {
		if _, err := m.Respond(requestID, approved); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	c.reportSinkFailure(id, c.sink.ApprovalResponse(id, requestID, approved))
	return nil
}

// DismissError clears the current session's error banner.
func (c *Controller) DismissError() error {
	id := c.Current()
	if id == "" {
		return api.ErrUnknownSession
	}
	return c.coord.Mutate(id, func(m *Machine) (bool, error) {
		m.DismissError()
		return true, nil
	})
}
