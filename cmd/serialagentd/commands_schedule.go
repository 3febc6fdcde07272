package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/serialagent/gateway/internal/config"
	"github.com/serialagent/gateway/internal/schedule"
)

// =============================================================================
// Schedule Command Group
// =============================================================================

func buildScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect and trigger cron jobs",
	}
	cmd.AddCommand(buildScheduleListCmd(), buildScheduleRunNowCmd())
	return cmd
}

func buildScheduleListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured cron jobs and their next run time",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runScheduleList(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildScheduleRunNowCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run-now <job-id>",
		Short: "Trigger a cron job immediately, bypassing its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runScheduleRunNow(cmd, configPath, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

// =============================================================================
// Schedule Command Handlers
// =============================================================================

// loadScheduler builds a Scheduler from the configured cron jobs without
// starting the rest of the gateway, so the CLI subcommands can inspect and
// trigger jobs without standing up providers, the node listener, etc.
func loadScheduler(configPath string) (*config.Config, *schedule.Scheduler, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	scheduler, err := schedule.NewScheduler(cfg.Cron)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build scheduler: %w", err)
	}
	return cfg, scheduler, nil
}

func runScheduleList(cmd *cobra.Command, configPath string) error {
	_, scheduler, err := loadScheduler(configPath)
	if err != nil {
		return err
	}

	jobs := scheduler.Jobs()
	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No cron jobs configured.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tNEXT RUN")
	for _, job := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", job.ID, job.Name, job.Type, job.NextRun.Format("2006-01-02T15:04:05Z07:00"))
	}
	return w.Flush()
}

func runScheduleRunNow(cmd *cobra.Command, configPath, jobID string) error {
	_, scheduler, err := loadScheduler(configPath)
	if err != nil {
		return err
	}

	if err := scheduler.RunJob(cmd.Context(), jobID); err != nil {
		return fmt.Errorf("job %s failed: %w", jobID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "job %s executed\n", jobID)
	return nil
}
