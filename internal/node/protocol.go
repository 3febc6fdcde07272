package node

import (
	"encoding/json"
	"time"
)

// Wire protocol constants for the node WebSocket connection (spec.md §6,
// "Node WebSocket protocol").
const (
	ProtocolVersion = "1"

	maxPayloadBytes = 1 << 20
	writeWait       = 10 * time.Second
	// helloTimeout bounds how long the gateway waits for node_hello after
	// accepting the upgrade before closing the connection.
	helloTimeout = 10 * time.Second
	// pongWait bounds how long the connection tolerates silence (no ping or
	// pong frame in either direction) before it's considered dead.
	pongWait = 45 * time.Second
	// pingInterval is how often the gateway emits its own ping frame.
	pingInterval = 20 * time.Second
)

// Frame is the JSON envelope exchanged over a node's WebSocket connection:
// a text frame carrying one tagged message, per spec.md §6.
type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FrameType tags the kind of message a Frame carries.
type FrameType string

const (
	// FrameNodeHello is sent by a connecting node as its handshake.
	FrameNodeHello FrameType = "node_hello"
	// FrameGatewayWelcome is the gateway's handshake reply.
	FrameGatewayWelcome FrameType = "gateway_welcome"
	// FrameToolRequest is pushed by the gateway to ask a node to run a tool.
	FrameToolRequest FrameType = "tool_request"
	// FrameToolResponse is the node's reply to a tool_request.
	FrameToolResponse FrameType = "tool_response"
	// FramePing may be emitted by either side to check liveness.
	FramePing FrameType = "ping"
	// FramePong replies to a ping.
	FramePong FrameType = "pong"
)

// NodeHelloParams is the payload of a node_hello frame.
type NodeHelloParams struct {
	NodeID       string   `json:"node_id"`
	NodeType     string   `json:"node_type"`
	Capabilities []string `json:"capabilities"`
	Version      string   `json:"version"`
}

// GatewayWelcomeParams is the payload of the gateway's reply to node_hello.
type GatewayWelcomeParams struct {
	SessionID      string `json:"session_id"`
	GatewayVersion string `json:"gateway_version"`
}

// ToolRequestParams is the payload of a tool_request frame.
type ToolRequestParams struct {
	RequestID  string          `json:"request_id"`
	ToolName   string          `json:"tool_name"`
	Arguments  json.RawMessage `json:"arguments"`
	SessionKey string          `json:"session_key,omitempty"`
}

// ToolResponseParams is the payload of a tool_response frame. A Result
// larger than the configured cap arrives pre-truncated by the node as
// `{"_truncated":true,"_original_bytes":N,"partial":"..."}` with Truncated
// set, per spec.md §6.
type ToolResponseParams struct {
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

// PingParams/PongParams carry the liveness-check timestamp.
type PingParams struct {
	Timestamp int64 `json:"timestamp"`
}

type PongParams struct {
	Timestamp int64 `json:"timestamp"`
}
