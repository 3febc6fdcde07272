package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that starts the gateway process.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the SerialAgent gateway",
		Long: `Start the SerialAgent gateway process.

The process will:
1. Load configuration from the specified file (or $SERIALAGENTD_CONFIG / serialagent.yaml)
2. Construct the configured LLM providers and the turn orchestrator
3. Start the node registry's WebSocket listener and stale-node pruning loop
4. Start the cron scheduler (digest/message/agent/custom/webhook jobs)
5. Watch the config file for changes and hot-reload cron jobs on edit

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with default config
  serialagentd serve

  # Start with a custom config path
  serialagentd serve --config /etc/serialagent/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
