// Package assemble reconstructs complete assistant messages from ordered
// streams of message chunks and tracks the transient thinking indicator.
package assemble

import (
	"strings"

	"github.com/google/uuid"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Assembler
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Assembler holds at most one in-flight stream buffer for a session.
// Chunks must be applied in arrival order; the transport is assumed ordered
// per session and out-of-order delivery is not corrected here.
type Assembler struct {
	buf      strings.Builder
	entryID  string
	inFlight bool
	thinking bool
}

// New creates an empty assembler.
func New() *Assembler {
	return &Assembler{}
}

// Update describes the effect of applying a chunk or a finalization on the
// conversation log. The owner materializes it as an assistant MessageEntry:
// created entries are appended with Complete=false, subsequent updates mutate
// the same entry in place, and Done marks it settled.
type Update struct {
	EntryID string
	Content string // full accumulated text, not the delta
	Created bool   // a new assistant entry must be appended
	Done    bool   // the entry is settled; the buffer is gone
}

// OnChunk appends content to the in-flight buffer, creating one if none
// exists for the current assistant turn. done=true finalizes the buffer.
// A bare done=true with no content and no in-flight buffer is a duplicate
// finalization and reports ok=false: finalizing twice never creates a
// second entry.
func (a *Assembler) OnChunk(content string, done bool) (Update, bool) {
	created := false
	if !a.inFlight {
		if done && content == "" {
			return Update{}, false
		}
		a.inFlight = true
		a.entryID = "msg_" + uuid.NewString()
		a.buf.Reset()
		created = true
	}
	a.buf.WriteString(content)

	u := Update{
		EntryID: a.entryID,
		Content: a.buf.String(),
		Created: created,
		Done:    done,
	}
	if done {
		a.inFlight = false
		a.buf.Reset()
	}
	return u, true
}

// Finalize settles the in-flight buffer immediately with whatever content has
// accumulated (possibly empty), so the log never retains a permanently
// streaming ghost entry. It is a no-op when no buffer is in flight.
func (a *Assembler) Finalize() (Update, bool) {
	if !a.inFlight {
		return Update{}, false
	}
	u := Update{
		EntryID: a.entryID,
		Content: a.buf.String(),
		Done:    true,
	}
	a.inFlight = false
	a.buf.Reset()
	return u, true
}

// OnThinking toggles the thinking flag. No message entry is created.
func (a *Assembler) OnThinking(active bool) {
	a.thinking = active
}

// Thinking reports the current thinking indicator.
func (a *Assembler) Thinking() bool {
	return a.thinking
}

// InFlight reports whether a stream buffer is currently open.
func (a *Assembler) InFlight() bool {
	return a.inFlight
}
