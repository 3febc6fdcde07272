package node

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// PendingCall tracks a tool call dispatched to a node awaiting its result.
type PendingCall struct {
	ToolName  string
	Result    chan ToolResponseParams
	CreatedAt time.Time
}

// Connection wraps one node's WebSocket transport: framed JSON send/receive
// with frame-level ping/pong liveness and in-flight tool-call tracking.
type Connection struct {
	id     string
	conn   *websocket.Conn
	logger *slog.Logger

	send   chan Frame
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]*PendingCall
}

// NewConnection wraps an already-upgraded WebSocket connection for node id.
func NewConnection(ctx context.Context, id string, ws *websocket.Conn, logger *slog.Logger) *Connection {
	cctx, cancel := context.WithCancel(ctx)
	return &Connection{
		id:      id,
		conn:    ws,
		logger:  logger,
		send:    make(chan Frame, 64),
		ctx:     cctx,
		cancel:  cancel,
		pending: make(map[string]*PendingCall),
	}
}

// Run starts the connection's read and write loops and blocks until the
// connection closes (either side) or ctx is cancelled. onFrame is invoked
// for every frame that isn't a tool_response or a ping/pong the connection
// itself handles.
func (c *Connection) Run(onFrame func(Frame)) {
	defer c.Close()
	go c.writeLoop()
	c.readLoop(onFrame)
}

func (c *Connection) readLoop(onFrame func(Frame)) {
	c.conn.SetReadLimit(maxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("node sent malformed frame", "node_id", c.id, "error", err)
			continue
		}

		switch frame.Type {
		case FrameToolResponse:
			c.resolvePending(frame)
		case FramePing:
			c.replyPong()
			onFrame(frame)
		case FramePong:
			onFrame(frame)
		default:
			onFrame(frame)
		}
	}
}

func (c *Connection) replyPong() {
	payload, _ := json.Marshal(PongParams{Timestamp: time.Now().Unix()})
	select {
	case c.send <- Frame{Type: FramePong, Payload: payload}:
	case <-c.ctx.Done():
	}
}

func (c *Connection) resolvePending(frame Frame) {
	var params ToolResponseParams
	if err := json.Unmarshal(frame.Payload, &params); err != nil {
		c.logger.Warn("node sent malformed tool response", "node_id", c.id, "error", err)
		return
	}

	c.mu.Lock()
	pending, ok := c.pending[params.RequestID]
	if ok {
		delete(c.pending, params.RequestID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	pending.Result <- params
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			payload, _ := json.Marshal(PingParams{Timestamp: time.Now().Unix()})
			if err := c.writeFrame(Frame{Type: FramePing, Payload: payload}); err != nil {
				return
			}
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.writeFrame(frame); err != nil {
				return
			}
		}
	}
}

func (c *Connection) writeFrame(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// CallTool dispatches a tool_request to the node and blocks until the node
// responds with a matching tool_response, the context is cancelled, or
// timeout elapses.
func (c *Connection) CallTool(ctx context.Context, requestID, toolName string, arguments json.RawMessage, timeout time.Duration) (ToolResponseParams, error) {
	payload, err := json.Marshal(ToolRequestParams{RequestID: requestID, ToolName: toolName, Arguments: arguments})
	if err != nil {
		return ToolResponseParams{}, fmt.Errorf("marshal tool_request: %w", err)
	}

	pending := &PendingCall{ToolName: toolName, Result: make(chan ToolResponseParams, 1), CreatedAt: time.Now()}
	c.mu.Lock()
	c.pending[requestID] = pending
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	select {
	case c.send <- Frame{Type: FrameToolRequest, Payload: payload}:
	case <-ctx.Done():
		return ToolResponseParams{}, ctx.Err()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-pending.Result:
		return result, nil
	case <-timer.C:
		return ToolResponseParams{}, fmt.Errorf("node %s timed out executing %s", c.id, toolName)
	case <-ctx.Done():
		return ToolResponseParams{}, ctx.Err()
	case <-c.ctx.Done():
		return ToolResponseParams{}, fmt.Errorf("node %s disconnected", c.id)
	}
}

// Close tears down the connection's loops and underlying socket.
func (c *Connection) Close() error {
	c.cancel()
	return c.conn.Close()
}
