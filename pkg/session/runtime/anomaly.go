package runtime

import (
	"sync"
	"time"

	"ClusterDesk/pkg/logger"
	"ClusterDesk/pkg/session/api"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// AnomalyLog
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

const defaultAnomalyCap = 256

// AnomalyLog is a bounded in-memory record of protocol anomalies,
// consumable by diagnostics. Every recorded anomaly is also logged at WARN.
// Anomalies never unwind the dispatcher.
type AnomalyLog struct {
	mu  sync.Mutex
	buf []api.Anomaly
	max int
}

// NewAnomalyLog creates an anomaly log holding up to the default capacity.
func NewAnomalyLog() *AnomalyLog {
	return &AnomalyLog{max: defaultAnomalyCap}
}

// Record stamps and stores an anomaly, evicting the oldest past capacity.
func (l *AnomalyLog) Record(a api.Anomaly) {
	if a.At.IsZero() {
		a.At = time.Now()
	}
	logger.Warn("Protocol", "anomaly: "+a.Code, map[string]interface{}{
		"session_id": a.SessionID,
		"detail":     a.Detail,
	})

	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, a)
	if len(l.buf) > l.max {
		l.buf = l.buf[len(l.buf)-l.max:]
	}
}

// List returns a copy of the recorded anomalies, oldest first.
func (l *AnomalyLog) List() []api.Anomaly {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]api.Anomaly(nil), l.buf...)
}
