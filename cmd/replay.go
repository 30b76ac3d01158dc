package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"ClusterDesk/pkg/session/runtime"
	"ClusterDesk/pkg/session/store"
)

var replayCmd = &cobra.Command{
	Use:   "replay <session-id>",
	Short: "Rebuild a session from its event log and print the transcript",
	Long: `Replay reads the session's persisted event log and re-applies every
event through a fresh state machine. The reconstructed transcript is
printed along with any protocol anomalies encountered on the way, which
makes replay the quickest way to debug a misbehaving backend.`,
	Args: cobra.ExactArgs(1),
	Run:  runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

var (
	replayHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("86")).
				Border(lipgloss.RoundedBorder()).
				Padding(0, 2)

	replayAnomalyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("208"))
)

func runReplay(cmd *cobra.Command, args []string) {
	sessionID := args[0]

	eventLog, err := store.NewJSONLEventLog(cfg.WorkspaceRoot)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	events, err := eventLog.Replay(context.Background(), sessionID)
	if err != nil {
		fmt.Printf("Error reading event log: %v\n", err)
		return
	}
	if len(events) == 0 {
		fmt.Printf("No events recorded for %s\n", sessionID)
		return
	}

	m := runtime.NewMachine(sessionID)
	var anomalies []string
	for _, ev := range events {
		_, anoms := m.Apply(ev)
		for _, a := range anoms {
			anomalies = append(anomalies, fmt.Sprintf("%s: %s", a.Code, a.Detail))
		}
	}

	snap := m.Snapshot()
	fmt.Println(replayHeaderStyle.Render(fmt.Sprintf("Replay %s — %d events, %d entries",
		sessionID, len(events), len(snap.Messages))))
	printTranscript(sessionID, snap.Messages)

	if len(anomalies) > 0 {
		fmt.Println(replayAnomalyStyle.Render(fmt.Sprintf("\n⚠️  %d anomalies during replay:", len(anomalies))))
		for _, a := range anomalies {
			fmt.Println(replayAnomalyStyle.Render("  " + a))
		}
	}
}
