package cmd

import (
	"context"

	"ClusterDesk/cmd/ui"
	"ClusterDesk/pkg/session/api"
	"ClusterDesk/pkg/session/runtime"
)

// waitTurn consumes snapshots for one session until the turn settles:
// streaming stops, no approval is pending, and the thinking indicator is
// off. Approval prompts block the loop; ESC twice interrupts the turn.
func waitTurn(ctx context.Context, ctrl *runtime.Controller, sub <-chan api.Snapshot, sessionID string, approver *ui.Approver, r *renderer) {
	cleanup := monitorInterrupt(ctx, func() { _ = ctrl.Interrupt() })
	defer func() { cleanup() }()

	stopSpinner, spinnerDone := ui.StartLoading("Thinking...")
	spinnerOn := true
	stopSpin := func() {
		if spinnerOn {
			close(stopSpinner)
			<-spinnerDone
			spinnerOn = false
		}
	}
	defer stopSpin()
	defer r.stopToolSpinner()

	promptedID := ""
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub:
			if !ok {
				return
			}
			if snap.SessionID != sessionID {
				continue
			}
			stopSpin()
			r.apply(snap)

			if snap.LastError != nil {
				ui.Errorf("%s: %s", snap.LastError.Code, snap.LastError.Message)
				_ = ctrl.DismissError()
				continue
			}

			if p := snap.PendingApproval; p != nil && !p.Resolved && p.RequestID != promptedID {
				promptedID = p.RequestID

				// The prompt owns the terminal; release raw mode first.
				r.stopToolSpinner()
				cleanup()
				decision, err := approver.Prompt(*p)
				if err != nil {
					decision = ui.DecisionDeny
				}
				if decision == ui.DecisionApprove {
					_ = ctrl.Approve(p.RequestID)
				} else {
					_ = ctrl.Deny(p.RequestID)
				}
				cleanup = monitorInterrupt(ctx, func() { _ = ctrl.Interrupt() })
				continue
			}

			if snap.Lifecycle == api.LifecycleEnded {
				ui.Print("\nSession ended.\n")
				return
			}
			if !snap.Streaming && !snap.Thinking && snap.PendingApproval == nil {
				return
			}
		}
	}
}
