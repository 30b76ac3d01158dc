package runtime

import (
	"context"
	"errors"
	"io"
	"sync"

	"ClusterDesk/pkg/logger"
	"ClusterDesk/pkg/session/api"
	"ClusterDesk/pkg/session/decode"
	"ClusterDesk/pkg/session/store"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Worker
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

const workerQueueSize = 128

// worker serializes all access to one session machine: inbound events drain
// through the queue goroutine, controller calls go through mutate, and both
// paths hold the same lock. Events for different sessions never block each
// other.
type worker struct {
	mu    sync.Mutex
	m     *Machine
	queue chan api.Event
	stop  chan struct{}
	once  sync.Once
}

func (w *worker) close() {
	w.once.Do(func() { close(w.stop) })
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Coordinator
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Coordinator owns the session table. It pumps the backend event stream,
// decodes envelopes, routes each event to its session's worker and publishes
// a fresh snapshot after every state change. Unknown session ids create a
// session on first sight so a restarted frontend can resume mid-stream.
type Coordinator struct {
	mu      sync.Mutex
	workers map[string]*worker

	log   store.EventLog
	anoms *AnomalyLog

	subMu sync.Mutex
	subs  map[chan api.Snapshot]struct{}

	wg sync.WaitGroup
}

// NewCoordinator creates a coordinator persisting applied events to log.
func NewCoordinator(log store.EventLog) *Coordinator {
	if log == nil {
		log = store.NopEventLog{}
	}
	return &Coordinator{
		workers: make(map[string]*worker),
		log:     log,
		anoms:   NewAnomalyLog(),
		subs:    make(map[chan api.Snapshot]struct{}),
	}
}

// Anomalies returns the recorded protocol anomalies, oldest first.
func (c *Coordinator) Anomalies() []api.Anomaly {
	return c.anoms.List()
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Session Table
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Ensure returns the worker for a session id, creating session state and its
// drain goroutine on first sight.
func (c *Coordinator) Ensure(sessionID string) *worker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.workers[sessionID]; ok {
		return w
	}
	w := &worker{
		m:     NewMachine(sessionID),
		queue: make(chan api.Event, workerQueueSize),
		stop:  make(chan struct{}),
	}
	c.workers[sessionID] = w
	c.wg.Add(1)
	go c.drain(w)
	return w
}

func (c *Coordinator) lookup(sessionID string) (*worker, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.workers[sessionID]
	return w, ok
}

// Remove stops a session's worker and drops it from the table. Queued
// events for the removed session are discarded.
func (c *Coordinator) Remove(sessionID string) {
	c.mu.Lock()
	w, ok := c.workers[sessionID]
	delete(c.workers, sessionID)
	c.mu.Unlock()
	if ok {
		w.close()
	}
}

// Sessions returns a snapshot of every live session.
func (c *Coordinator) Sessions() []api.Snapshot {
	c.mu.Lock()
	workers := make([]*worker, 0, len(c.workers))
	for _, w := range c.workers {
		workers = append(workers, w)
	}
	c.mu.Unlock()

	out := make([]api.Snapshot, 0, len(workers))
	for _, w := range workers {
		w.mu.Lock()
		out = append(out, w.m.Snapshot())
		w.mu.Unlock()
	}
	return out
}

// Mutate runs fn against a session's machine under its lock and publishes
// the resulting snapshot when fn reports a state change. It fails with
// ErrUnknownSession for ids not in the table.
func (c *Coordinator) Mutate(sessionID string, fn func(*Machine) (bool, error)) error {
	w, ok := c.lookup(sessionID)
	if !ok {
		return api.ErrUnknownSession
	}
	w.mu.Lock()
	changed, err := fn(w.m)
	var snap api.Snapshot
	if changed {
		snap = w.m.Snapshot()
	}
	w.mu.Unlock()
	if changed {
		c.publish(snap)
	}
	return err
}

// Snapshot returns the current view of one session.
func (c *Coordinator) Snapshot(sessionID string) (api.Snapshot, error) {
	w, ok := c.lookup(sessionID)
	if !ok {
		return api.Snapshot{}, api.ErrUnknownSession
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.m.Snapshot(), nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Event Pump
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Run consumes the backend envelope stream until ctx is canceled or the
// stream closes. Malformed and unknown envelopes are dropped with an anomaly,
// never surfaced as session errors; well-formed events are routed to their
// session worker. Run returns the stream error, or nil on clean EOF.
func (c *Coordinator) Run(ctx context.Context, src api.EnvelopeStream) error {
	defer c.shutdown()
	for {
		env, err := src.Recv(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		ev, err := decode.Decode(env)
		if err != nil {
			code := api.AnomalyDecode
			if errors.Is(err, decode.ErrUnknownType) {
				code = api.AnomalyUnknownEvent
			}
			c.anoms.Record(api.Anomaly{Code: code, Detail: err.Error()})
			continue
		}

		w := c.Ensure(ev.SessionID)
		select {
		case w.queue <- ev:
		case <-w.stop:
		case <-ctx.Done():
			return nil
		}
	}
}

// drain applies queued events for one session in arrival order.
func (c *Coordinator) drain(w *worker) {
	defer c.wg.Done()
	for {
		select {
		case ev := <-w.queue:
			c.apply(w, ev)
		case <-w.stop:
			return
		}
	}
}

func (c *Coordinator) apply(w *worker, ev api.Event) {
	w.mu.Lock()
	applied, anoms := w.m.Apply(ev)
	var snap api.Snapshot
	if applied {
		snap = w.m.Snapshot()
	}
	w.mu.Unlock()

	for _, a := range anoms {
		if a.SessionID == "" {
			a.SessionID = ev.SessionID
		}
		c.anoms.Record(a)
	}
	if !applied {
		return
	}
	if err := c.log.Append(context.Background(), ev); err != nil {
		logger.Error("EventLog", "append failed", map[string]interface{}{
			"session_id": ev.SessionID,
			"error":      err.Error(),
		})
	}
	c.publish(snap)
}

// shutdown stops every worker and waits for the drain goroutines.
func (c *Coordinator) shutdown() {
	c.mu.Lock()
	for _, w := range c.workers {
		w.close()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Snapshot Fan-Out
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Subscribe registers a snapshot channel with capacity one. Delivery is
// latest-wins: a slow consumer skips intermediate snapshots instead of
// blocking event application. Call the returned cancel func to unregister.
func (c *Coordinator) Subscribe() (<-chan api.Snapshot, func()) {
	ch := make(chan api.Snapshot, 1)
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()
	cancel := func() {
		c.subMu.Lock()
		delete(c.subs, ch)
		c.subMu.Unlock()
	}
	return ch, cancel
}

func (c *Coordinator) publish(snap api.Snapshot) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// Replace the stale pending snapshot with the newer one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
