package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"ClusterDesk/pkg/config"
	"ClusterDesk/pkg/logger"
)

// Global flags
var (
	configFlag   string
	logLevelFlag string
	demoFlag     bool
)

// cfg is the loaded configuration, available to every subcommand.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "clusterdesk",
	Short: "ClusterDesk - AI assistant sessions for Kubernetes clusters",
	Long: `ClusterDesk drives chat sessions with a cluster-aware AI agent.

The agent streams its answers, runs kubectl-style tools, and asks for
explicit approval before anything that mutates cluster state.

Global Flags:
  --config   Config file path (default: ~/.clusterdesk/config.yaml)
  --log-level  DEBUG | INFO | WARN | ERROR
  --demo     Use the built-in scripted backend instead of spawning an agent`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().BoolVar(&demoFlag, "demo", false, "Run against the built-in scripted backend")

	cobra.OnInitialize(initRuntime)
}

// initRuntime loads config and brings the logger up before any command runs.
func initRuntime() {
	path := configFlag
	if path == "" {
		path = config.DefaultPath()
	}

	var err error
	cfg, err = config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		cfg = config.Default()
	}
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		cfg.LogLevel = env
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}

	if err := logger.Init(cfg.LogPath, logger.ParseLevel(cfg.LogLevel), "clusterdesk"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize logger: %v\n", err)
	}

	logger.Info("System", "ClusterDesk starting", map[string]interface{}{
		"os":        runtime.GOOS,
		"workspace": cfg.WorkspaceRoot,
	})
}

// Execute runs the root command. Invoking the binary with no arguments
// starts chat mode directly.
func Execute() {
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "chat")
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
