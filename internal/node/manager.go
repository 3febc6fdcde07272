package node

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// StaleTimeout is the default window after which a node with no heartbeat
// (ping/pong) is considered disconnected and eligible for pruning.
const StaleTimeout = 90 * time.Second

// GatewayVersion is reported in the gateway_welcome handshake reply.
const GatewayVersion = "1"

// Manager owns the node registry and the WebSocket handshake that brings
// connections into it. It is the integration point tool dispatch uses to
// resolve and call out to a connected node.
type Manager struct {
	Registry *Registry

	logger   *slog.Logger
	upgrader websocket.Upgrader

	allowlists map[string][]string
}

// NewManager creates a Manager with an empty registry. perNodeAllowlist, if
// non-nil, maps node id to the capability allowlist enforced at
// registration time for that id.
func NewManager(logger *slog.Logger, perNodeAllowlist map[string][]string) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		Registry:   NewRegistry(),
		logger:     logger,
		allowlists: perNodeAllowlist,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the incoming request to a WebSocket and blocks
// handling that node's connection until it disconnects.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("node websocket upgrade failed", "error", err)
		return
	}

	m.handleConnection(r.Context(), ws)
}

func (m *Manager) handleConnection(ctx context.Context, ws *websocket.Conn) {
	tempID := uuid.NewString()
	conn := NewConnection(ctx, tempID, ws, m.logger)

	var registered atomic.Bool
	var nodeID string
	helloDeadline := time.AfterFunc(helloTimeout, func() {
		if !registered.Load() {
			conn.Close()
		}
	})
	defer helloDeadline.Stop()

	conn.Run(func(frame Frame) {
		switch frame.Type {
		case FrameNodeHello:
			var params NodeHelloParams
			if err := json.Unmarshal(frame.Payload, &params); err != nil {
				m.logger.Warn("node_hello frame invalid", "error", err)
				return
			}
			nodeID = params.NodeID
			m.Registry.Register(params.NodeID, params.NodeType, params.Capabilities, RegisterOptions{
				Allowlist: m.allowlists[params.NodeID],
			}, conn)
			registered.Store(true)
			helloDeadline.Stop()

			welcome, _ := json.Marshal(GatewayWelcomeParams{SessionID: uuid.NewString(), GatewayVersion: GatewayVersion})
			select {
			case conn.send <- Frame{Type: FrameGatewayWelcome, Payload: welcome}:
			case <-ctx.Done():
			}

			m.logger.Info("node registered", "node_id", nodeID, "node_type", params.NodeType, "capabilities", params.Capabilities)
		case FramePing, FramePong:
			if registered.Load() {
				m.Registry.Touch(nodeID)
			}
		}
	})

	if registered.Load() {
		m.Registry.Remove(nodeID)
		m.logger.Info("node disconnected", "node_id", nodeID)
	}
}

// PruneLoop runs PruneStale on the registry every interval until ctx is
// cancelled. Intended to run as a background goroutine alongside the
// scheduler's own tick loop.
func (m *Manager) PruneLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := m.Registry.PruneStale(StaleTimeout); len(removed) > 0 {
				m.logger.Info("pruned stale nodes", "node_ids", removed)
			}
		}
	}
}

// Dispatch resolves toolName against the registry and, if a node can serve
// it, forwards the call and waits for the node's result.
func (m *Manager) Dispatch(ctx context.Context, toolName string, affinity []string, input json.RawMessage, timeout time.Duration) (content string, isError bool, err error) {
	info, ok := m.Registry.Resolve(toolName, affinity)
	if !ok {
		return "", false, fmt.Errorf("no connected node resolves tool %q", toolName)
	}
	conn := info.Connection()
	if conn == nil {
		return "", false, fmt.Errorf("node %q has no live connection", info.ID)
	}

	result, err := conn.CallTool(ctx, uuid.NewString(), toolName, input, timeout)
	if err != nil {
		return "", false, err
	}
	return result.Result, !result.Success, nil
}
