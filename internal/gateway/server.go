package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/serialagent/gateway/internal/config"
	"github.com/serialagent/gateway/internal/jobs"
	"github.com/serialagent/gateway/internal/mcp"
	"github.com/serialagent/gateway/internal/node"
	"github.com/serialagent/gateway/internal/run"
	"github.com/serialagent/gateway/internal/schedule"
	"github.com/serialagent/gateway/internal/session"
	"github.com/serialagent/gateway/internal/turn"
)

// ManagedServerConfig configures a ManagedServer.
type ManagedServerConfig struct {
	Config     *config.Config
	Logger     *slog.Logger
	ConfigPath string
}

// ManagedServer composes the turn runtime, node registry, scheduler, and run
// store into a single process lifecycle, the way the teacher's gateway
// package composes channel adapters around the provider registry.
type ManagedServer struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger

	Runtime   *turn.Runtime
	Nodes     *node.Manager
	Scheduler *schedule.Scheduler
	RunStore  run.Store
	MCP       *mcp.Manager

	nodeServer *http.Server
	watcher    *config.Watcher
}

// NewManagedServer builds every subsystem from cfg but does not start any
// goroutines or listeners; call Start to bring the process up.
func NewManagedServer(mcfg ManagedServerConfig) (*ManagedServer, error) {
	cfg := mcfg.Config
	if cfg == nil {
		return nil, errors.New("gateway: config is required")
	}
	logger := mcfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runStore, err := buildRunStore(cfg.RunStore)
	if err != nil {
		return nil, fmt.Errorf("gateway: run store: %w", err)
	}
	jobStore := jobs.NewMemoryStore()

	providerSet := buildProviders(cfg.LLM, func(name string, err error) {
		logger.Warn("llm provider init failed", "provider", name, "error", err)
	})
	defaultProvider, ok := providerSet[cfg.LLM.DefaultProvider]
	if !ok {
		return nil, fmt.Errorf("gateway: default llm provider %q not configured", cfg.LLM.DefaultProvider)
	}

	runtimeOpts := turn.DefaultRuntimeOptions()
	if cfg.Tools.Execution.MaxIterations > 0 {
		runtimeOpts.MaxIterations = cfg.Tools.Execution.MaxIterations
	}
	runtimeOpts.ToolParallelism = cfg.Tools.Execution.Parallelism
	runtimeOpts.ToolTimeout = cfg.Tools.Execution.Timeout
	runtimeOpts.ToolMaxAttempts = cfg.Tools.Execution.MaxAttempts
	runtimeOpts.ToolRetryBackoff = cfg.Tools.Execution.RetryBackoff
	runtimeOpts.DisableToolEvents = cfg.Tools.Execution.DisableEvents
	runtimeOpts.MaxToolCalls = cfg.Tools.Execution.MaxToolCalls
	runtimeOpts.RequireApproval = cfg.Tools.Execution.RequireApproval
	runtimeOpts.AsyncTools = cfg.Tools.Execution.Async
	runtimeOpts.ElevatedTools = cfg.Tools.Elevated.Tools
	runtimeOpts.JobStore = jobStore
	runtimeOpts.RunStore = runStore
	runtimeOpts.Logger = logger
	runtimeOpts.ApprovalChecker = buildApprovalChecker(cfg.Tools.Execution.Approval)
	runtime := turn.NewRuntimeWithOptions(defaultProvider, session.NewMemoryStore(), runtimeOpts)

	nodeManager := node.NewManager(logger.With("component", "node"), cfg.Node.Allowlist)

	var mcpManager *mcp.Manager
	if cfg.MCP.Enabled {
		mcpManager = mcp.NewManager(&cfg.MCP, logger.With("component", "mcp"))
	}

	dispatcher := newRuntimeDispatcher(runtime, cfg.Session.DefaultAgentID)
	scheduler, err := schedule.NewScheduler(cfg.Cron,
		schedule.WithLogger(logger.With("component", "cron")),
		schedule.WithMessageSender(dispatcher),
		schedule.WithAgentRunner(dispatcher),
	)
	if err != nil {
		return nil, fmt.Errorf("gateway: scheduler: %w", err)
	}

	registerBuiltinTools(runtime, cfg, jobStore, nodeManager, scheduler)

	return &ManagedServer{
		cfg:        cfg,
		configPath: mcfg.ConfigPath,
		logger:     logger,
		Runtime:    runtime,
		Nodes:      nodeManager,
		Scheduler:  scheduler,
		RunStore:   runStore,
		MCP:        mcpManager,
	}, nil
}

// reloadCronJobs re-registers every job from a freshly loaded config,
// picking up additions and edits. Jobs removed from the file are left
// running until the process restarts; cron's blast radius from a bad
// edit is a missed or duplicate run, not a dangling job worth tearing
// down on every hot-reload.
func (s *ManagedServer) reloadCronJobs(cfg *config.Config) {
	if cfg == nil {
		return
	}
	for _, job := range cfg.Cron.Jobs {
		if _, err := s.Scheduler.RegisterJob(job); err != nil {
			s.logger.Warn("cron job reload rejected", "id", job.ID, "error", err)
		}
	}
}

// Start brings up the node WebSocket listener, the stale-node pruning loop,
// the scheduler, and (if configured) the MCP client manager. It returns once
// all of those are running; call Stop (or cancel ctx) to shut them down.
func (s *ManagedServer) Start(ctx context.Context) error {
	addr := s.cfg.Node.ListenAddr
	if addr == "" {
		addr = fmt.Sprintf("%s:7700", s.cfg.Server.Host)
	}
	s.nodeServer = &http.Server{Addr: addr, Handler: s.Nodes}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("node websocket listener starting", "addr", addr)
		if err := s.nodeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("node listener: %w", err)
			return
		}
		errCh <- nil
	}()

	staleTimeout := node.StaleTimeout
	if timeout := s.cfg.Node.HandshakeTimeout; timeout > 0 {
		staleTimeout = time.Duration(timeout) * time.Second
	}
	go s.Nodes.PruneLoop(ctx, staleTimeout)

	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("scheduler start: %w", err)
	}

	if s.MCP != nil {
		if err := s.MCP.Start(ctx); err != nil {
			s.logger.Warn("mcp manager start failed", "error", err)
		}
	}

	if s.configPath != "" {
		s.watcher = config.NewWatcher(s.configPath, s.logger, s.reloadCronJobs)
		if err := s.watcher.Start(ctx); err != nil {
			s.logger.Warn("config watcher start failed", "error", err)
		}
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the node listener, scheduler, and MCP manager.
func (s *ManagedServer) Stop(ctx context.Context) error {
	var errs []error

	if s.nodeServer != nil {
		if err := s.nodeServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("node listener shutdown: %w", err))
		}
	}
	if err := s.Scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
	}
	if s.MCP != nil {
		if err := s.MCP.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("mcp manager stop: %w", err))
		}
	}
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("config watcher stop: %w", err))
		}
	}

	return errors.Join(errs...)
}

func buildRunStore(cfg config.RunStoreConfig) (run.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return run.OpenMemoryStore(filepath.Join(cfg.StateDir, "runs"))
	case "sqlite":
		if cfg.Path == "" {
			return nil, errors.New("run_store.path is required for the sqlite driver")
		}
		return run.OpenSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown run_store.driver %q", cfg.Driver)
	}
}
