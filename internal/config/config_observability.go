package config

import "time"

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ObservabilityConfig configures tracing and other observability features.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Endpoint       string            `yaml:"endpoint"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Environment    string            `yaml:"environment"`
	SamplingRate   float64           `yaml:"sampling_rate"`
	Insecure       bool              `yaml:"insecure"`
	Attributes     map[string]string `yaml:"attributes"`
}

// CronConfig configures scheduled jobs.
type CronConfig struct {
	Enabled bool            `yaml:"enabled"`
	Jobs    []CronJobConfig `yaml:"jobs"`
}

// CronJobConfig defines a scheduled job.
type CronJobConfig struct {
	ID       string             `yaml:"id"`
	Name     string             `yaml:"name"`
	Type     string             `yaml:"type"`
	Enabled  bool               `yaml:"enabled"`
	Schedule CronScheduleConfig `yaml:"schedule"`
	Message  *CronMessageConfig `yaml:"message,omitempty"`
	Webhook  *CronWebhookConfig `yaml:"webhook,omitempty"`
	Custom   *CronCustomConfig  `yaml:"custom,omitempty"`
	Digest   *CronDigestConfig  `yaml:"digest,omitempty"`
	Retry    CronRetryConfig    `yaml:"retry"`
}

// CronDigestConfig defines a source-fetching digest job: it pulls one or
// more URLs, detects which changed since the last run, folds the results
// into a templated prompt, and runs that prompt as a turn under the given
// agent, delivering the result like an agent job.
type CronDigestConfig struct {
	AgentID        string `yaml:"agent_id"`
	Model          string `yaml:"model,omitempty"`
	Target         string `yaml:"target"`
	TargetID       string `yaml:"target_id"`
	PromptTemplate string `yaml:"prompt_template"`

	Sources []string `yaml:"sources"`
	// Mode is "full" (every successfully fetched source) or
	// "changes_only" (only sources whose content hash changed).
	Mode string `yaml:"mode"`

	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	UserAgent    string        `yaml:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`

	RunTimeout     time.Duration `yaml:"run_timeout"`
	MaxConcurrency int           `yaml:"max_concurrency"`

	// MissedRunPolicy is "skip", "run_once", or "catch_up_bounded".
	MissedRunPolicy string `yaml:"missed_run_policy"`
	MaxCatchupRuns  int    `yaml:"max_catchup_runs"`
}

// CronScheduleConfig defines when a job runs.
type CronScheduleConfig struct {
	Cron     string        `yaml:"cron"`
	Every    time.Duration `yaml:"every"`
	At       string        `yaml:"at"`
	Timezone string        `yaml:"timezone"`
}

// CronMessageConfig defines a digest/message job payload delivered to the
// turn runtime as a synthetic user turn.
type CronMessageConfig struct {
	// Target and TargetID identify the delivery target the rendered
	// content is dispatched to (e.g. a node/channel kind and its id).
	Target   string         `yaml:"target"`
	TargetID string         `yaml:"target_id"`
	Content  string         `yaml:"content,omitempty"`
	Template string         `yaml:"template"`
	Data     map[string]any `yaml:"data"`
	Tools    []string       `yaml:"tools,omitempty"`
}

// CronWebhookConfig defines a webhook job payload.
type CronWebhookConfig struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
	Body    string            `yaml:"body"`
	Timeout time.Duration     `yaml:"timeout"`
	Auth    *CronWebhookAuth  `yaml:"auth,omitempty"`
}

// CronWebhookAuth defines authentication for webhook jobs.
type CronWebhookAuth struct {
	Type   string `yaml:"type"`
	Token  string `yaml:"token,omitempty"`
	User   string `yaml:"user,omitempty"`
	Pass   string `yaml:"pass,omitempty"`
	Header string `yaml:"header,omitempty"`
}

// CronCustomConfig defines a custom cron job payload, dispatched to a
// handler registered via Scheduler.RegisterCustomHandler.
type CronCustomConfig struct {
	Handler string         `yaml:"handler"`
	Args    map[string]any `yaml:"args"`
}

// CronRetryConfig controls retry behavior for cron jobs.
type CronRetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}
