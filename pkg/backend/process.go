// Package backend provides transports to the agent backend: a child-process
// bridge speaking JSON lines over stdio, and a scripted loopback for demos
// and tests.
package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"ClusterDesk/pkg/logger"
	"ClusterDesk/pkg/session/api"
	"ClusterDesk/pkg/session/store"
)

// maxLineSize bounds one stdout event line (1MB).
const maxLineSize = 1024 * 1024

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Wire Commands
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// command is one outbound line on the agent's stdin.
type command struct {
	Command   string `json:"command"`
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Approved  *bool  `json:"approved,omitempty"`
	Op        string `json:"op,omitempty"`
}

const (
	cmdStartTurn = "start_turn"
	cmdInterrupt = "interrupt"
	cmdApproval  = "approval_response"
	cmdSession   = "session"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Process
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Process bridges a spawned agent: commands go out as JSON lines on stdin,
// event envelopes come back as JSON lines on stdout. It implements
// api.CommandSink; Stream exposes the inbound side.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stream *store.ChannelEnvelopeStream

	mu sync.Mutex // serializes stdin writes
}

// StartProcess spawns the agent process and begins pumping its stdout.
// The process is killed when ctx is canceled.
func StartProcess(ctx context.Context, name string, args ...string) (*Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start agent %s: %w", name, err)
	}

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		stream: store.NewChannelEnvelopeStream(256),
	}
	go p.pumpStdout(stdout)
	go p.pumpStderr(stderr)
	return p, nil
}

// Stream returns the inbound envelope stream. It closes when the agent's
// stdout closes.
func (p *Process) Stream() api.EnvelopeStream {
	return p.stream
}

// Close shuts the agent down: stdin closes first so the agent can exit
// cleanly, then the process is waited on.
func (p *Process) Close() error {
	p.mu.Lock()
	_ = p.stdin.Close()
	p.mu.Unlock()
	return p.cmd.Wait()
}

func (p *Process) pumpStdout(r io.Reader) {
	defer p.stream.Close()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env api.Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			logger.Warn("Backend", "dropping malformed event line", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		if err := p.stream.Send(env); err != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("Backend", "stdout read failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (p *Process) pumpStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		logger.Debug("Backend", "agent: "+scanner.Text(), nil)
	}
}

func (p *Process) write(c command) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode command %s: %w", c.Command, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write command %s: %w", c.Command, err)
	}
	return nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// CommandSink
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// StartTurn begins a conversation turn.
func (p *Process) StartTurn(sessionID, text string) error {
	return p.write(command{Command: cmdStartTurn, SessionID: sessionID, Text: text})
}

// Interrupt signals cooperative cancellation of the in-flight turn.
func (p *Process) Interrupt(sessionID string) error {
	return p.write(command{Command: cmdInterrupt, SessionID: sessionID})
}

// ApprovalResponse resolves an outstanding approval request.
func (p *Process) ApprovalResponse(sessionID, requestID string, approved bool) error {
	a := approved
	return p.write(command{Command: cmdApproval, SessionID: sessionID, RequestID: requestID, Approved: &a})
}

// SessionLifecycle issues a session lifecycle command.
func (p *Process) SessionLifecycle(op api.LifecycleOp, sessionID string) error {
	return p.write(command{Command: cmdSession, Op: string(op), SessionID: sessionID})
}
