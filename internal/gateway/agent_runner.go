package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/serialagent/gateway/internal/config"
	"github.com/serialagent/gateway/internal/schedule"
	"github.com/serialagent/gateway/internal/turn"
	"github.com/serialagent/gateway/pkg/models"
)

// runtimeDispatcher drives a synthetic turn through the turn runtime on
// behalf of the scheduler, for both digest ("message") jobs and full-agent
// ("agent") cron jobs. The delivery target itself (the node/channel a
// message is ultimately handed to) is an external collaborator outside this
// module's scope; runtimeDispatcher's job ends at producing the rendered
// assistant turn and recording it against the job's session.
type runtimeDispatcher struct {
	runtime *turn.Runtime
	agentID string
}

// newRuntimeDispatcher adapts runtime into the schedule.MessageSender and
// schedule.AgentRunner interfaces used by internal/schedule's scheduler.
func newRuntimeDispatcher(runtime *turn.Runtime, defaultAgentID string) *runtimeDispatcher {
	return &runtimeDispatcher{runtime: runtime, agentID: defaultAgentID}
}

var _ schedule.MessageSender = (*runtimeDispatcher)(nil)
var _ schedule.AgentRunner = (*runtimeDispatcher)(nil)

// Send implements schedule.MessageSender: it drives message.Content through
// the turn runtime as a synthetic user turn scoped to the job's target, and
// discards the response stream (a message job's point is the side effect of
// running the turn, e.g. updating memory or triggering tools, not a reply).
func (d *runtimeDispatcher) Send(ctx context.Context, message *config.CronMessageConfig) error {
	sessionKey := sessionKeyForTarget(message.Target, message.TargetID)
	return d.runTurn(ctx, sessionKey, d.agentID, message.Content)
}

// Run implements schedule.AgentRunner: it drives job.Message.Content through
// the turn runtime the same way Send does, scoped to a per-job session when
// the job has no explicit target. Digest jobs carry their own owning agent
// id (spec.md §3); every other job type runs under the dispatcher's default
// agent.
func (d *runtimeDispatcher) Run(ctx context.Context, job *schedule.Job) error {
	if job == nil || job.Message == nil {
		return fmt.Errorf("agent job missing message payload")
	}
	sessionKey := sessionKeyForTarget(job.Message.Target, job.Message.TargetID)
	if sessionKey == "" {
		sessionKey = "cron:" + job.ID
	}
	agentID := d.agentID
	if job.Digest != nil && strings.TrimSpace(job.Digest.AgentID) != "" {
		agentID = job.Digest.AgentID
	}
	return d.runTurn(ctx, sessionKey, agentID, job.Message.Content)
}

func (d *runtimeDispatcher) runTurn(ctx context.Context, sessionKey, agentID, content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("empty turn content")
	}

	session, err := d.runtime.Sessions().GetOrCreate(ctx, sessionKey, agentID)
	if err != nil {
		return fmt.Errorf("get or create session: %w", err)
	}

	msg := &models.Message{
		ID:         uuid.NewString(),
		SessionKey: sessionKey,
		Role:       models.RoleUser,
		Content:    content,
	}

	chunks, err := d.runtime.Process(ctx, session, msg)
	if err != nil {
		return fmt.Errorf("process turn: %w", err)
	}
	for chunk := range chunks {
		if chunk.Error != nil {
			return chunk.Error
		}
	}
	return nil
}

func sessionKeyForTarget(target, targetID string) string {
	target = strings.TrimSpace(target)
	targetID = strings.TrimSpace(targetID)
	if target == "" && targetID == "" {
		return ""
	}
	return target + ":" + targetID
}
