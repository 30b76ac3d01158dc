package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ClusterDesk/cmd/ui"
	"ClusterDesk/pkg/backend"
	"ClusterDesk/pkg/logger"
	"ClusterDesk/pkg/session/api"
	"ClusterDesk/pkg/session/runtime"
	"ClusterDesk/pkg/session/store"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session with the cluster agent",
	Run:   runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// chatRuntime bundles everything the chat loop needs.
type chatRuntime struct {
	ctrl    *runtime.Controller
	stream  api.EnvelopeStream
	archive *store.Archive
	close   func()
}

// buildRuntime wires the backend, stores, coordinator and controller from
// the loaded config. --demo swaps the spawned agent for the scripted
// loopback backend.
func buildRuntime(ctx context.Context) (*chatRuntime, error) {
	eventLog, err := store.NewJSONLEventLog(cfg.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("event log: %w", err)
	}

	var archive *store.Archive
	if cfg.Archive {
		archive, err = store.OpenArchive(cfg.WorkspaceRoot)
		if err != nil {
			logger.Warn("Archive", "archive disabled", map[string]interface{}{
				"error": err.Error(),
			})
			archive = nil
		}
	}

	var sink api.CommandSink
	var stream api.EnvelopeStream
	closeBackend := func() {}

	if demoFlag || cfg.Backend.Command == "" {
		lb := backend.NewLoopback(40 * time.Millisecond)
		sink, stream = lb, lb.Stream()
		closeBackend = func() { _ = lb.Close() }
	} else {
		proc, err := backend.StartProcess(ctx, cfg.Backend.Command, cfg.Backend.Args...)
		if err != nil {
			return nil, fmt.Errorf("start backend: %w", err)
		}
		sink, stream = proc, proc.Stream()
		closeBackend = func() { _ = proc.Close() }
	}

	coord := runtime.NewCoordinator(eventLog)
	ctrl := runtime.NewController(coord, sink, archive, eventLog)

	closer := func() {
		closeBackend()
		if archive != nil {
			_ = archive.Close()
		}
	}
	return &chatRuntime{ctrl: ctrl, stream: stream, archive: archive, close: closer}, nil
}

func runChat(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := buildRuntime(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer rt.close()

	go func() {
		if err := rt.ctrl.Coordinator().Run(ctx, rt.stream); err != nil {
			logger.Error("Coordinator", "event pump failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	sessionID := rt.ctrl.NewSession()
	printChatBanner(sessionID)

	approver := ui.NewApprover()
	sub, unsubscribe := rt.ctrl.Subscribe()
	defer unsubscribe()

	historyMgr, err := NewHistoryManager(cfg.WorkspaceRoot)
	if err != nil {
		fmt.Printf("Warning: Failed to initialize history: %v\n", err)
	}
	var inputHistory []string
	if historyMgr != nil {
		if stored, err := historyMgr.Load(); err == nil {
			inputHistory = stored
		}
	}

	r := newRenderer()
	for {
		in, err := ui.ReadInputWithHistory("\n💬 You: ", inputHistory)
		if err != nil {
			fmt.Printf("Input error: %v\n", err)
			return
		}
		if in.Cancelled {
			return
		}

		text := strings.TrimSpace(in.Value)
		if text == "" {
			continue
		}

		if len(inputHistory) == 0 || inputHistory[len(inputHistory)-1] != text {
			inputHistory = append(inputHistory, text)
			if historyMgr != nil {
				go func(t string) {
					_ = historyMgr.Append(t)
				}(text)
			}
		}

		if strings.HasPrefix(text, "/") {
			if quit := runSlashCommand(ctx, rt, text, &r); quit {
				return
			}
			continue
		}

		if err := rt.ctrl.Send(text); err != nil {
			ui.Errorf("%v", err)
			continue
		}
		waitTurn(ctx, rt.ctrl, sub, rt.ctrl.Current(), approver, r)
	}
}

// runSlashCommand handles the chat-local commands. Returns true to quit.
func runSlashCommand(ctx context.Context, rt *chatRuntime, text string, r **renderer) bool {
	fields := strings.Fields(strings.ToLower(text))
	switch fields[0] {
	case "/quit", "/exit", "/q":
		fmt.Println("\nGoodbye.")
		return true

	case "/help", "/?":
		fmt.Println("\nCommands:")
		for _, c := range ui.DefaultCommands {
			fmt.Printf("  %-11s %s\n", c.Name, c.Description)
		}

	case "/new":
		id := rt.ctrl.NewSession()
		*r = newRenderer()
		fmt.Printf("\n📂 New session: %s\n", id)

	case "/sessions":
		sessions := rt.ctrl.Sessions()
		if len(sessions) == 0 {
			fmt.Println("\nNo live sessions.")
			break
		}
		fmt.Println("\n📂 Sessions:")
		for _, s := range sessions {
			marker := "  "
			if s.SessionID == rt.ctrl.Current() {
				marker = "* "
			}
			fmt.Printf("%s%s - %d entries (%s)\n", marker, s.SessionID, len(s.Messages), s.Lifecycle)
		}

	case "/switch":
		if len(fields) < 2 {
			fmt.Println("\nUsage: /switch <session-id>")
			break
		}
		if err := rt.ctrl.SelectSession(fields[1]); err != nil {
			ui.Errorf("%v", err)
			break
		}
		*r = newRenderer()
		fmt.Printf("\n📂 Switched to %s\n", fields[1])

	case "/delete":
		id := rt.ctrl.Current()
		if id == "" {
			fmt.Println("\nNo current session.")
			break
		}
		if err := rt.ctrl.DeleteSession(ctx, id); err != nil {
			ui.Errorf("%v", err)
			break
		}
		fmt.Printf("\n🗑  Deleted %s\n", id)
		id = rt.ctrl.NewSession()
		*r = newRenderer()
		fmt.Printf("📂 New session: %s\n", id)

	case "/dismiss":
		if err := rt.ctrl.DismissError(); err != nil {
			ui.Errorf("%v", err)
		}

	case "/anomalies":
		anoms := rt.ctrl.Anomalies()
		if len(anoms) == 0 {
			fmt.Println("\nNo anomalies recorded.")
			break
		}
		fmt.Println("\n⚠️  Protocol anomalies:")
		for _, a := range anoms {
			fmt.Printf("  [%s] %s %s\n", a.At.Format("15:04:05"), a.Code, a.Detail)
		}

	default:
		fmt.Printf("\nUnknown command %s (try /help)\n", fields[0])
	}
	return false
}

func printChatBanner(sessionID string) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                   ☸️  ClusterDesk Chat                         ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Session: %-52s ║\n", sessionID)
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  Commands:                                                    ║")
	fmt.Println("║    /help       Show all commands                              ║")
	fmt.Println("║    /new        Start a fresh session                          ║")
	fmt.Println("║    /sessions   List live sessions                             ║")
	fmt.Println("║    /quit       Exit                                           ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  Tips:                                                        ║")
	fmt.Println("║    • Ctrl+J to insert newline, Enter to send                  ║")
	fmt.Println("║    • Press ESC twice to interrupt a running turn              ║")
	fmt.Println("║    • Mutating kubectl actions always ask for approval         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
}
