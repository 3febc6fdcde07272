package gateway

import (
	"github.com/serialagent/gateway/internal/config"
	"github.com/serialagent/gateway/internal/jobs"
	"github.com/serialagent/gateway/internal/node"
	"github.com/serialagent/gateway/internal/schedule"
	crontool "github.com/serialagent/gateway/internal/tools/cron"
	exectools "github.com/serialagent/gateway/internal/tools/exec"
	"github.com/serialagent/gateway/internal/tools/files"
	jobtools "github.com/serialagent/gateway/internal/tools/jobs"
	subagenttools "github.com/serialagent/gateway/internal/tools/subagent"
	"github.com/serialagent/gateway/internal/turn"
)

// registerBuiltinTools wires the file, exec, job-inspection, and cron tools
// into runtime's registry, scoped to cfg.Tools.Workspace the way the teacher
// scopes its filesystem tools to a single sandboxed root. nodes is accepted
// for parity with the node-dispatch tool surface, even though node-affinity
// routing is currently decided inside the turn loop's own tool dispatch
// rather than through a dedicated tool.
func registerBuiltinTools(runtime *turn.Runtime, cfg *config.Config, jobStore jobs.Store, nodes *node.Manager, scheduler *schedule.Scheduler) {
	filesCfg := files.Config{
		Workspace:    cfg.Tools.Workspace,
		MaxReadBytes: defaultMaxReadBytes,
	}
	runtime.RegisterTool(files.NewReadTool(filesCfg))
	runtime.RegisterTool(files.NewWriteTool(filesCfg))
	runtime.RegisterTool(files.NewEditTool(filesCfg))
	runtime.RegisterTool(files.NewApplyPatchTool(filesCfg))

	execManager := exectools.NewManager(cfg.Tools.Workspace)
	runtime.RegisterTool(exectools.NewExecTool("exec", execManager))
	runtime.RegisterTool(exectools.NewProcessTool(execManager))

	runtime.RegisterTool(jobtools.NewStatusTool(jobStore))
	runtime.RegisterTool(jobtools.NewCancelTool(jobStore))
	runtime.RegisterTool(jobtools.NewListTool(jobStore))

	runtime.RegisterTool(crontool.NewTool(scheduler))

	subagentMgr := subagenttools.NewManager(runtime, cfg.Tools.Subagent.MaxActive)
	runtime.RegisterTool(subagenttools.NewSpawnTool(subagentMgr))
	runtime.RegisterTool(subagenttools.NewStatusTool(subagentMgr))
	runtime.RegisterTool(subagenttools.NewCancelTool(subagentMgr))
}

const defaultMaxReadBytes = 256 * 1024
