package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/serialagent/gateway/internal/config"
	"github.com/serialagent/gateway/internal/gateway"
)

// runServe implements the serve command's logic: load config, build the
// managed server, run it until a shutdown signal arrives, then tear it down.
func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	slog.Info("starting serialagentd",
		"version", version,
		"commit", commit,
		"config", configPath,
		"debug", debug,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"llm_provider", cfg.LLM.DefaultProvider,
		"node_listen_addr", cfg.Node.ListenAddr,
		"run_store_driver", cfg.RunStore.Driver,
		"cron_jobs", len(cfg.Cron.Jobs),
	)

	server, err := gateway.NewManagedServer(gateway.ManagedServerConfig{
		Config:     cfg,
		Logger:     slog.Default(),
		ConfigPath: configPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	slog.Info("serialagentd started")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	slog.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("serialagentd stopped gracefully")
	return nil
}
