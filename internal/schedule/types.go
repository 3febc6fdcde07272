package schedule

import (
	"context"
	"time"

	"github.com/serialagent/gateway/internal/config"
)

// JobType identifies the handler for a cron job.
type JobType string

const (
	JobTypeMessage JobType = "message"
	JobTypeAgent   JobType = "agent"
	JobTypeWebhook JobType = "webhook"
	JobTypeCustom  JobType = "custom"
	JobTypeDigest  JobType = "digest"
)

// MissedRunPolicy controls what happens when a schedule's tick is observed
// well after its last recorded execution (process was down, tick queue
// backed up, etc).
type MissedRunPolicy string

const (
	MissedRunSkip           MissedRunPolicy = "skip"
	MissedRunOnce           MissedRunPolicy = "run_once"
	MissedRunCatchUpBounded MissedRunPolicy = "catch_up_bounded"
)

// DigestMode controls which fetched sources feed a digest job's prompt.
type DigestMode string

const (
	DigestModeFull        DigestMode = "full"
	DigestModeChangesOnly DigestMode = "changes_only"
)

// SourceState is the last known fetch outcome for one digest source URL,
// used to detect content changes between runs.
type SourceState struct {
	URL             string
	LastFetchedAt   time.Time
	LastContentHash string
	LastHTTPStatus  int
	LastError       string
}

// Schedule represents a parsed schedule.
type Schedule struct {
	Kind     string
	CronExpr string
	Every    time.Duration
	At       time.Time
	Timezone string
}

// Job represents a scheduled job.
type Job struct {
	ID       string
	Name     string
	Type     JobType
	Enabled  bool
	Schedule Schedule

	Message *config.CronMessageConfig
	Webhook *config.CronWebhookConfig
	Custom  *config.CronCustomConfig
	Digest  *config.CronDigestConfig
	Retry   config.CronRetryConfig

	NextRun    time.Time
	LastRun    time.Time
	LastError  string
	RetryCount int

	// Digest job state. SourceStates is keyed by source URL.
	SourceStates        map[string]*SourceState
	ConsecutiveFailures int
	CooldownUntil       time.Time
	CatchupRemaining    int

	// Rolling totals across all digest runs for this job.
	RollingRuns         int64
	RollingInputTokens  int64
	RollingOutputTokens int64

	// running tracks in-flight executions of this job, bounded by
	// Digest.MaxConcurrency; extra due ticks are dropped rather than
	// queued so a slow source fetch can't pile up concurrent runs.
	running int32
}

// MessageSender executes outbound cron message jobs.
type MessageSender interface {
	Send(ctx context.Context, message *config.CronMessageConfig) error
}

// MessageSenderFunc adapts a function to a MessageSender.
type MessageSenderFunc func(ctx context.Context, message *config.CronMessageConfig) error

// Send executes the message sender function.
func (f MessageSenderFunc) Send(ctx context.Context, message *config.CronMessageConfig) error {
	return f(ctx, message)
}

// AgentRunner executes agent cron jobs.
type AgentRunner interface {
	Run(ctx context.Context, job *Job) error
}

// AgentRunnerFunc adapts a function to an AgentRunner.
type AgentRunnerFunc func(ctx context.Context, job *Job) error

// Run executes the agent runner function.
func (f AgentRunnerFunc) Run(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// CustomHandler executes custom cron jobs.
type CustomHandler interface {
	Handle(ctx context.Context, job *Job, args map[string]any) error
}

// CustomHandlerFunc adapts a function to a CustomHandler.
type CustomHandlerFunc func(ctx context.Context, job *Job, args map[string]any) error

// Handle executes the custom handler function.
func (f CustomHandlerFunc) Handle(ctx context.Context, job *Job, args map[string]any) error {
	return f(ctx, job, args)
}
