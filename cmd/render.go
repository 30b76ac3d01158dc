package cmd

import (
	"strings"

	"ClusterDesk/cmd/ui"
	"ClusterDesk/pkg/session/api"
)

// renderer prints session snapshots incrementally: each entry is rendered
// once and assistant text appears as it streams. State is per chat loop, so
// switching sessions starts with a fresh renderer.
type renderer struct {
	printed    map[string]int // entry id → rendered content length
	tools      map[string]api.ToolStatus
	prefixOpen bool

	spinStop chan struct{}
	spinDone chan struct{}
}

func newRenderer() *renderer {
	return &renderer{
		printed: make(map[string]int),
		tools:   make(map[string]api.ToolStatus),
	}
}

// apply renders everything in snap that has not been printed yet.
func (r *renderer) apply(snap api.Snapshot) {
	for _, e := range snap.Messages {
		switch e.Kind {
		case api.EntryMessage:
			r.renderMessage(e)
		case api.EntryToolExecution:
			r.renderTool(e)
		case api.EntryApproval:
			// The approval prompt renders itself; entries only mark history.
			r.printed[e.ID] = 1
		}
	}
}

func (r *renderer) renderMessage(e api.MessageEntry) {
	body := e.Message
	if body == nil {
		return
	}
	if body.Role == api.RoleUser {
		// The user just typed it; nothing to echo.
		r.printed[e.ID] = len(body.Content)
		return
	}

	n := r.printed[e.ID]
	if len(body.Content) > n {
		r.stopToolSpinner()
		if !r.prefixOpen {
			ui.Print("\n🤖 Agent: ")
			r.prefixOpen = true
		}
		ui.Print(body.Content[n:])
		r.printed[e.ID] = len(body.Content)
	}
	if body.Complete && r.prefixOpen {
		ui.Print("\n")
		r.prefixOpen = false
	}
}

func (r *renderer) renderTool(e api.MessageEntry) {
	rec := e.Tool
	if rec == nil {
		return
	}
	prev, seen := r.tools[rec.RequestID]
	if !seen {
		line := "\n🔧 " + rec.ToolName
		if rec.CommandPreview != "" {
			line += "  " + rec.CommandPreview
		}
		ui.Print(line + "\n")
		if !rec.Status.Terminal() {
			r.stopToolSpinner()
			r.spinStop, r.spinDone = ui.StartInlineSpinner(rec.ToolName)
		}
	}
	if rec.Status.Terminal() && (!seen || !prev.Terminal()) {
		r.stopToolSpinner()
		ui.Printf("🔧 %s → %s\n", rec.ToolName, rec.Status)
		if rec.Output != "" {
			ui.Print(rec.Output)
			if !strings.HasSuffix(rec.Output, "\n") {
				ui.Print("\n")
			}
		}
	}
	r.tools[rec.RequestID] = rec.Status
}

// stopToolSpinner clears any inline tool spinner before other output is
// written to the same line region.
func (r *renderer) stopToolSpinner() {
	if r.spinStop == nil {
		return
	}
	close(r.spinStop)
	<-r.spinDone
	r.spinStop = nil
	r.spinDone = nil
}
