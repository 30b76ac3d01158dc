package backend

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ClusterDesk/pkg/session/api"
	"ClusterDesk/pkg/session/store"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Loopback
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Loopback is a scripted in-process backend. It answers every turn with a
// canned cluster-inspection flow: read-only questions run a tool
// immediately, destructive ones go through the approval gate first. Used by
// demo mode and tests; no cluster is touched.
type Loopback struct {
	stream *store.ChannelEnvelopeStream

	mu      sync.Mutex
	pending map[string]pendingTool // request id → tool awaiting approval
	delay   time.Duration
}

type pendingTool struct {
	sessionID string
	toolName  string
	preview   string
	output    string
}

// NewLoopback creates a loopback backend. delay paces scripted events so a
// human can watch the stream; tests pass 0.
func NewLoopback(delay time.Duration) *Loopback {
	return &Loopback{
		stream:  store.NewChannelEnvelopeStream(256),
		pending: make(map[string]pendingTool),
		delay:   delay,
	}
}

// Stream returns the inbound envelope stream.
func (l *Loopback) Stream() api.EnvelopeStream {
	return l.stream
}

// Close ends the event stream.
func (l *Loopback) Close() error {
	return l.stream.Close()
}

func (l *Loopback) emit(sessionID string, typ api.EventType, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	// Envelope payloads carry the session id inline.
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return
	}
	m["session_id"] = sessionID
	data, err = json.Marshal(m)
	if err != nil {
		return
	}
	_ = l.stream.Send(api.Envelope{Type: string(typ), Data: data})
}

func (l *Loopback) pause() {
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
}

func (l *Loopback) chunks(sessionID, text string) {
	words := strings.SplitAfter(text, " ")
	for i, w := range words {
		l.emit(sessionID, api.EventMessageChunk, api.MessageChunkPayload{
			Content: w,
			Done:    i == len(words)-1,
		})
		l.pause()
	}
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// CommandSink
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// StartTurn plays the scripted response for the user's text.
func (l *Loopback) StartTurn(sessionID, text string) error {
	go l.playTurn(sessionID, text)
	return nil
}

func (l *Loopback) playTurn(sessionID, text string) {
	l.emit(sessionID, api.EventThinking, api.ThinkingPayload{Active: true})
	l.pause()
	l.emit(sessionID, api.EventThinking, api.ThinkingPayload{Active: false})

	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "delete") || strings.Contains(lower, "drain"):
		l.playApprovalFlow(sessionID, lower)
	case strings.Contains(lower, "pod"):
		l.playPodList(sessionID)
	default:
		l.chunks(sessionID, "I can inspect workloads, nodes and events in the connected cluster. Ask me about pods to see a live listing.")
	}
}

func (l *Loopback) playPodList(sessionID string) {
	reqID := "req_" + uuid.NewString()
	l.emit(sessionID, api.EventToolExecution, api.ToolExecutionPayload{
		RequestID:      reqID,
		ToolName:       "kubectl_get",
		Status:         api.ToolPending,
		CommandPreview: "kubectl get pods -n default",
	})
	l.pause()
	l.emit(sessionID, api.EventToolExecution, api.ToolExecutionPayload{
		RequestID: reqID,
		ToolName:  "kubectl_get",
		Status:    api.ToolRunning,
	})
	l.pause()
	l.emit(sessionID, api.EventToolExecution, api.ToolExecutionPayload{
		RequestID: reqID,
		ToolName:  "kubectl_get",
		Status:    api.ToolCompleted,
		Output: "NAME                     READY   STATUS    RESTARTS   AGE\n" +
			"api-7d9c6bf5b4-kq2xw     1/1     Running   0          3d\n" +
			"worker-559f68cc7-ltmp8   1/1     Running   2          12h\n" +
			"cache-0                  1/1     Running   0          9d",
	})
	l.pause()
	l.chunks(sessionID, "Three pods are running in the default namespace: api, worker and cache. The worker pod restarted twice in the last 12 hours; its logs may be worth a look.")
}

func (l *Loopback) playApprovalFlow(sessionID, lower string) {
	reqID := "req_" + uuid.NewString()
	preview := "kubectl delete pod worker-559f68cc7-ltmp8 -n default"
	if strings.Contains(lower, "drain") {
		preview = "kubectl drain node-2 --ignore-daemonsets"
	}

	l.mu.Lock()
	l.pending[reqID] = pendingTool{
		sessionID: sessionID,
		toolName:  "kubectl_mutate",
		preview:   preview,
		output:    "done",
	}
	l.mu.Unlock()

	l.emit(sessionID, api.EventToolExecution, api.ToolExecutionPayload{
		RequestID:      reqID,
		ToolName:       "kubectl_mutate",
		Status:         api.ToolPending,
		CommandPreview: preview,
	})
	l.pause()

	input, _ := json.Marshal(map[string]string{"command": preview})
	l.emit(sessionID, api.EventApprovalRequired, api.ApprovalRequiredPayload{
		RequestID: reqID,
		Reason:    "This command modifies cluster state.",
		Severity:  api.SeverityHigh,
		ToolInput: input,
	})
}

// Interrupt is acknowledged with no further events: the scripted turn state
// makes no difference to the frontend once it has finalized locally.
func (l *Loopback) Interrupt(sessionID string) error {
	return nil
}

// ApprovalResponse runs the gated tool on approval or blocks it on denial.
func (l *Loopback) ApprovalResponse(sessionID, requestID string, approved bool) error {
	l.mu.Lock()
	tool, ok := l.pending[requestID]
	delete(l.pending, requestID)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	go l.playResolution(sessionID, requestID, tool, approved)
	return nil
}

func (l *Loopback) playResolution(sessionID, requestID string, tool pendingTool, approved bool) {
	if !approved {
		l.emit(sessionID, api.EventToolBlocked, api.ToolBlockedPayload{
			RequestID: requestID,
			Reason:    "denied by user",
		})
		l.pause()
		l.chunks(sessionID, "Understood, I left the cluster untouched.")
		return
	}
	l.emit(sessionID, api.EventToolExecution, api.ToolExecutionPayload{
		RequestID:      requestID,
		ToolName:       tool.toolName,
		Status:         api.ToolRunning,
		CommandPreview: tool.preview,
	})
	l.pause()
	l.emit(sessionID, api.EventToolExecution, api.ToolExecutionPayload{
		RequestID: requestID,
		ToolName:  tool.toolName,
		Status:    api.ToolCompleted,
		Output:    tool.output,
	})
	l.pause()
	l.chunks(sessionID, "The command completed successfully.")
}

// SessionLifecycle acknowledges lifecycle commands; deletion ends the
// session on the event stream the way a real backend would.
func (l *Loopback) SessionLifecycle(op api.LifecycleOp, sessionID string) error {
	if op == api.LifecycleDelete && sessionID != "" {
		l.emit(sessionID, api.EventSessionEnded, api.SessionEndedPayload{Reason: "deleted"})
	}
	return nil
}
