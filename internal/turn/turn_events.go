package turn

import (
	"context"
	"encoding/json"

	"github.com/serialagent/gateway/pkg/models"
)

// StreamEventKind names an event in the turn orchestrator's external event
// stream: thought, assistant_delta, tool_call, tool_result, final (or
// stopped for a cancelled turn), error, and a terminal usage summary.
type StreamEventKind string

const (
	StreamEventThought        StreamEventKind = "thought"
	StreamEventAssistantDelta StreamEventKind = "assistant_delta"
	StreamEventToolCall       StreamEventKind = "tool_call"
	StreamEventToolResult     StreamEventKind = "tool_result"
	StreamEventFinal          StreamEventKind = "final"
	StreamEventStopped        StreamEventKind = "stopped"
	StreamEventError          StreamEventKind = "error"
	StreamEventUsage          StreamEventKind = "usage"
)

// StreamUsage summarizes token accounting for a completed or stopped turn.
type StreamUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// StreamEvent is one item in the turn orchestrator's external event stream.
type StreamEvent struct {
	Kind  StreamEventKind `json:"kind"`
	RunID string          `json:"run_id,omitempty"`

	Content string `json:"content,omitempty"` // thought/assistant_delta/final/stopped text

	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolArgs   json.RawMessage `json:"tool_args,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`

	Usage *StreamUsage `json:"usage,omitempty"`
	Err   error        `json:"-"`
}

// StreamEventSink converts AgentEvents into the spec's StreamEvent taxonomy and
// writes them to ch, matching the order the orchestrator actually emits
// them in: thought*, assistant_delta*, (tool_call, tool_result)*, then
// exactly one of final/stopped/error, followed by a terminal usage event.
type StreamEventSink struct {
	ch chan<- StreamEvent
}

// NewStreamEventSink returns a sink that writes to ch. ch should be buffered;
// delivery is non-blocking and drops events rather than stalling the turn,
// except for the terminal final/stopped/error/usage events which block
// briefly so callers don't silently miss the outcome.
func NewStreamEventSink(ch chan<- StreamEvent) *StreamEventSink {
	return &StreamEventSink{ch: ch}
}

func (s *StreamEventSink) send(ctx context.Context, ev StreamEvent, terminal bool) {
	if !terminal {
		select {
		case s.ch <- ev:
		default:
		}
		return
	}
	select {
	case s.ch <- ev:
	case <-ctx.Done():
	}
}

// Emit implements EventSink.
func (s *StreamEventSink) Emit(ctx context.Context, e models.AgentEvent) {
	switch e.Type {
	case models.AgentEventIterStarted:
		s.send(ctx, StreamEvent{Kind: StreamEventThought, RunID: e.RunID}, false)

	case models.AgentEventModelDelta:
		if e.Stream != nil && e.Stream.Delta != "" {
			s.send(ctx, StreamEvent{Kind: StreamEventAssistantDelta, RunID: e.RunID, Content: e.Stream.Delta}, false)
		}

	case models.AgentEventToolStarted:
		if e.Tool != nil {
			s.send(ctx, StreamEvent{
				Kind:       StreamEventToolCall,
				RunID:      e.RunID,
				ToolCallID: e.Tool.CallID,
				ToolName:   e.Tool.Name,
				ToolArgs:   json.RawMessage(e.Tool.ArgsJSON),
			}, false)
		}

	case models.AgentEventToolFinished, models.AgentEventToolTimedOut:
		if e.Tool != nil {
			s.send(ctx, StreamEvent{
				Kind:       StreamEventToolResult,
				RunID:      e.RunID,
				ToolCallID: e.Tool.CallID,
				ToolName:   e.Tool.Name,
				Content:    string(e.Tool.ResultJSON),
				IsError:    e.Type == models.AgentEventToolTimedOut || !e.Tool.Success,
			}, false)
		}

	case models.AgentEventRunFinished:
		var final string
		var usage *StreamUsage
		if e.Stream != nil {
			final = e.Stream.Final
			usage = &StreamUsage{InputTokens: e.Stream.InputTokens, OutputTokens: e.Stream.OutputTokens, TotalTokens: e.Stream.InputTokens + e.Stream.OutputTokens}
		}
		if e.Stats != nil && e.Stats.Run != nil {
			usage = &StreamUsage{InputTokens: e.Stats.Run.InputTokens, OutputTokens: e.Stats.Run.OutputTokens, TotalTokens: e.Stats.Run.InputTokens + e.Stats.Run.OutputTokens}
		}
		s.send(ctx, StreamEvent{Kind: StreamEventFinal, RunID: e.RunID, Content: final}, true)
		s.send(ctx, StreamEvent{Kind: StreamEventUsage, RunID: e.RunID, Usage: usage}, true)

	case models.AgentEventRunCancelled:
		s.send(ctx, StreamEvent{Kind: StreamEventStopped, RunID: e.RunID}, true)

	case models.AgentEventRunError, models.AgentEventRunTimedOut:
		msg := ""
		var err error
		if e.Error != nil {
			msg = e.Error.Message
			err = e.Error.Err
		}
		s.send(ctx, StreamEvent{Kind: StreamEventError, RunID: e.RunID, Content: msg, Err: err, IsError: true}, true)
	}
}
