package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/serialagent/gateway/internal/config"
	"github.com/serialagent/gateway/internal/node"
)

// =============================================================================
// Node Command Group
// =============================================================================

// buildNodeCmd creates the "node" command group.
//
// Node state lives only in the running gateway process's in-memory registry
// (see internal/node.Registry) — there is no separate persistence layer to
// query out of process, and the admin RPC surface that would let a CLI
// invocation reach a live process's registry is explicitly out of scope
// (see the HTTP layer Non-goal). "node list" therefore reports the
// configured allowlist and listen address rather than live connections;
// inspecting connected nodes requires the out-of-scope admin API.
func buildNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Inspect node registry configuration",
	}
	cmd.AddCommand(buildNodeListCmd())
	return cmd
}

func buildNodeListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the configured node listen address and per-node allowlists",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runNodeList(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runNodeList(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	addr := cfg.Node.ListenAddr
	if addr == "" {
		addr = fmt.Sprintf("%s:7700", cfg.Server.Host)
	}
	fmt.Fprintf(out, "Listen address: %s\n", addr)
	fmt.Fprintf(out, "Handshake timeout: %ds (stale timeout %s if unset)\n",
		cfg.Node.HandshakeTimeout, node.StaleTimeout)

	if len(cfg.Node.Allowlist) == 0 {
		fmt.Fprintln(out, "No per-node capability allowlists configured; connecting nodes use their self-declared capabilities.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NODE ID\tALLOWED CAPABILITIES")
	for id, caps := range cfg.Node.Allowlist {
		fmt.Fprintf(w, "%s\t%s\n", id, strings.Join(caps, ", "))
	}
	return w.Flush()
}
