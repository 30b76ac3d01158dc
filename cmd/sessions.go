package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ClusterDesk/cmd/ui"
	"ClusterDesk/pkg/session/api"
	"ClusterDesk/pkg/session/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect archived sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived sessions",
	Run:   runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print an archived transcript",
	Args:  cobra.ExactArgs(1),
	Run:   runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Remove a session from the archive",
	Args:  cobra.ExactArgs(1),
	Run:   runSessionsDelete,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openArchiveOrExit() *store.Archive {
	arch, err := store.OpenArchive(cfg.WorkspaceRoot)
	if err != nil {
		fmt.Printf("Error opening archive: %v\n", err)
		return nil
	}
	return arch
}

func runSessionsList(cmd *cobra.Command, args []string) {
	arch := openArchiveOrExit()
	if arch == nil {
		return
	}
	defer arch.Close()

	infos, err := arch.List(context.Background())
	if err != nil {
		fmt.Printf("Error listing sessions: %v\n", err)
		return
	}
	if len(infos) == 0 {
		fmt.Println("No archived sessions.")
		return
	}

	fmt.Println("\n📂 Archived sessions:")
	for _, info := range infos {
		fmt.Printf("  %s - %d entries - %s (%s)\n",
			info.SessionID, info.EntryCount, info.EndedAt.Format("2006-01-02 15:04"), info.Reason)
	}
	fmt.Println("\nShow one with: clusterdesk sessions show <session-id>")
}

func runSessionsShow(cmd *cobra.Command, args []string) {
	arch := openArchiveOrExit()
	if arch == nil {
		return
	}
	defer arch.Close()

	entries, err := arch.Load(context.Background(), args[0])
	if err != nil {
		fmt.Printf("Error loading session: %v\n", err)
		return
	}
	printTranscript(args[0], entries)
}

func runSessionsDelete(cmd *cobra.Command, args []string) {
	arch := openArchiveOrExit()
	if arch == nil {
		return
	}
	defer arch.Close()

	ok, err := ui.Confirm(fmt.Sprintf("Remove %s from the archive?", args[0]))
	if err != nil || !ok {
		fmt.Println("Aborted.")
		return
	}
	if err := arch.Delete(context.Background(), args[0]); err != nil {
		fmt.Printf("Error deleting session: %v\n", err)
		return
	}
	fmt.Printf("🗑  Removed %s\n", args[0])
}

// printTranscript renders a settled transcript entry by entry.
func printTranscript(sessionID string, entries []api.MessageEntry) {
	fmt.Printf("\n📂 Session %s (%d entries)\n\n", sessionID, len(entries))
	for _, e := range entries {
		switch e.Kind {
		case api.EntryMessage:
			if e.Message == nil {
				continue
			}
			who := "🤖 Agent"
			if e.Message.Role == api.RoleUser {
				who = "💬 You"
			}
			fmt.Printf("%s: %s\n", who, e.Message.Content)

		case api.EntryToolExecution:
			if e.Tool == nil {
				continue
			}
			fmt.Printf("🔧 %s [%s]", e.Tool.ToolName, e.Tool.Status)
			if e.Tool.CommandPreview != "" {
				fmt.Printf("  %s", e.Tool.CommandPreview)
			}
			fmt.Println()
			if e.Tool.Output != "" {
				out := e.Tool.Output
				if !strings.HasSuffix(out, "\n") {
					out += "\n"
				}
				fmt.Print(out)
			}

		case api.EntryApproval:
			if e.Approval == nil {
				continue
			}
			verdict := "pending"
			if e.Approval.Resolved {
				verdict = "denied"
				if e.Approval.Approved {
					verdict = "approved"
				}
			}
			fmt.Printf("⚠️  approval [%s/%s] %s\n", e.Approval.Severity, verdict, e.Approval.Reason)
		}
	}
}
