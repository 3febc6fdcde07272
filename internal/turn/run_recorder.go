package turn

import (
	"context"
	"sync"
	"time"

	"github.com/serialagent/gateway/internal/run"
	"github.com/serialagent/gateway/pkg/models"
)

// RunRecorder is an EventSink that turns the AgentEvent stream a turn
// produces into the Run/Node ledger entries the run store persists. It is
// the single place that translates the runtime's internal event taxonomy
// into the spec's Run/Node lifecycle, so the tool loop itself never needs
// to know the run store exists.
type RunRecorder struct {
	store run.Store

	mu          sync.Mutex
	r           *run.Run
	toolNodeIdx map[string]int // tool call id -> index into r.Nodes
	llmNodeIdx  int            // index of the in-flight llm_request node, -1 if none
}

// NewRunRecorder starts recording a new Run for the given session/agent,
// returning the recorder to register as an EventSink and the run id it
// assigned.
func NewRunRecorder(store run.Store, sessionKey, sessionID, agentID, runID string) *RunRecorder {
	rec := &RunRecorder{
		store:       store,
		toolNodeIdx: make(map[string]int),
		llmNodeIdx:  -1,
		r: &run.Run{
			ID:         runID,
			SessionKey: sessionKey,
			SessionID:  sessionID,
			AgentID:    agentID,
			Status:     run.StatusRunning,
			StartedAt:  time.Now(),
		},
	}
	return rec
}

func (rr *RunRecorder) persist(ctx context.Context) {
	if rr.store == nil {
		return
	}
	_ = rr.store.UpdateRun(ctx, rr.r)
}

func (rr *RunRecorder) publish(kind run.EventKind, node *run.Node, message string) {
	if rr.store == nil {
		return
	}
	rr.store.Publish(rr.r.ID, run.Event{Kind: kind, RunID: rr.r.ID, Run: rr.r.Clone(), Node: node, Message: message})
}

// Start creates the Run record. Call once before the first AgentEvent.
func (rr *RunRecorder) Start(ctx context.Context, model string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.r.Model = model
	if rr.store != nil {
		_ = rr.store.CreateRun(ctx, rr.r)
	}
	rr.publish(run.EventRunStatus, nil, "run started")
}

// Emit implements EventSink, updating the Run/Node ledger as events arrive.
func (rr *RunRecorder) Emit(ctx context.Context, e models.AgentEvent) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	switch e.Type {
	case models.AgentEventIterStarted:
		node := rr.r.NextNode(run.NodeKindLLMRequest, rr.r.Model)
		rr.llmNodeIdx = len(rr.r.Nodes) - 1
		rr.r.LoopCount = e.IterIndex + 1
		rr.persist(ctx)
		rr.publish(run.EventNodeStarted, node, "")

	case models.AgentEventModelDelta:
		if e.Stream != nil {
			rr.r.OutputPreview = run.Truncate(rr.r.OutputPreview + e.Stream.Delta)
		}

	case models.AgentEventModelCompleted:
		if rr.llmNodeIdx >= 0 && rr.llmNodeIdx < len(rr.r.Nodes) {
			node := &rr.r.Nodes[rr.llmNodeIdx]
			node.Status = run.StatusCompleted
			node.EndedAt = time.Now()
			node.Duration = node.EndedAt.Sub(node.StartedAt)
			if e.Stream != nil {
				if e.Stream.Model != "" {
					rr.r.Model = e.Stream.Model
					node.Name = e.Stream.Model
				}
				node.OutputPreview = run.Truncate(e.Stream.Final)
				node.InputTokens = e.Stream.InputTokens
				node.OutputTokens = e.Stream.OutputTokens
				rr.r.PromptTokens += e.Stream.InputTokens
				rr.r.CompletionTokens += e.Stream.OutputTokens
				rr.r.TotalTokens = rr.r.PromptTokens + rr.r.CompletionTokens
			}
			rr.persist(ctx)
			rr.publish(run.EventNodeCompleted, node, "")
		}
		rr.llmNodeIdx = -1

	case models.AgentEventToolStarted:
		if e.Tool != nil {
			node := rr.r.NextNode(run.NodeKindToolCall, e.Tool.Name)
			node.InputPreview = run.Truncate(string(e.Tool.ArgsJSON))
			rr.toolNodeIdx[e.Tool.CallID] = len(rr.r.Nodes) - 1
			rr.persist(ctx)
			rr.publish(run.EventNodeStarted, node, "")
		}

	case models.AgentEventToolFinished, models.AgentEventToolTimedOut:
		if e.Tool != nil {
			if idx, ok := rr.toolNodeIdx[e.Tool.CallID]; ok && idx < len(rr.r.Nodes) {
				node := &rr.r.Nodes[idx]
				node.EndedAt = time.Now()
				node.Duration = node.EndedAt.Sub(node.StartedAt)
				node.OutputPreview = run.Truncate(string(e.Tool.ResultJSON))
				if e.Type == models.AgentEventToolTimedOut || !e.Tool.Success {
					node.Status = run.StatusFailed
					node.Error = true
				} else {
					node.Status = run.StatusCompleted
				}
				delete(rr.toolNodeIdx, e.Tool.CallID)
				rr.persist(ctx)
				kind := run.EventNodeCompleted
				if node.Error {
					kind = run.EventNodeFailed
				}
				rr.publish(kind, node, "")
			}
		}

	case models.AgentEventRunFinished:
		rr.finish(ctx, run.StatusCompleted, "")

	case models.AgentEventRunError:
		msg := "run error"
		if e.Error != nil {
			msg = e.Error.Message
		}
		rr.finish(ctx, run.StatusFailed, msg)

	case models.AgentEventRunCancelled:
		rr.finish(ctx, run.StatusStopped, "run stopped")

	case models.AgentEventRunTimedOut:
		rr.finish(ctx, run.StatusFailed, "run timed out")
	}
}

// finish marks the run terminal exactly once; subsequent calls are no-ops
// so a late event can never reopen an already-terminal run.
func (rr *RunRecorder) finish(ctx context.Context, status run.Status, errMsg string) {
	if rr.r.Status.Terminal() {
		return
	}
	rr.r.Status = status
	rr.r.EndedAt = time.Now()
	rr.r.Duration = rr.r.EndedAt.Sub(rr.r.StartedAt)
	if errMsg != "" {
		rr.r.Error = errMsg
	}
	rr.persist(ctx)
	rr.publish(run.EventRunStatus, nil, errMsg)
	rr.publish(run.EventUsage, nil, "")
}
