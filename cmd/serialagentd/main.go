// Package main provides the CLI entry point for the SerialAgent gateway.
//
// SerialAgent runs the turn orchestrator, the node registry's WebSocket
// listener, and the schedule/digest ticker as a single process, and exposes
// operational subcommands for inspecting runs, schedules, and connected
// nodes without going through the (separately deployed) HTTP API.
//
// # Basic Usage
//
// Start the gateway:
//
//	serialagentd serve --config serialagent.yaml
//
// List scheduled jobs and their next run time:
//
//	serialagentd schedule list
//
// Trigger a schedule immediately, bypassing its cron expression:
//
//	serialagentd schedule run-now <job-id>
//
// List nodes currently connected over the WebSocket protocol:
//
//	serialagentd node list
//
// # Environment Variables
//
//   - SERIALAGENTD_CONFIG: path to the YAML configuration file (default: serialagent.yaml)
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY: LLM provider credentials
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to keep it testable.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "serialagentd",
		Short: "serialagentd - agentic tool-dispatch gateway",
		Long: `serialagentd runs the turn orchestrator, the WebSocket node registry,
and the schedule/digest ticker, and exposes subcommands for inspecting
run, schedule, and node state directly against the core packages.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildScheduleCmd(),
		buildNodeCmd(),
	)

	return rootCmd
}

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("SERIALAGENTD_CONFIG"); env != "" {
		return env
	}
	return "serialagent.yaml"
}
