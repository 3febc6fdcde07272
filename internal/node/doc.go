// Package node implements the connected-node registry and WebSocket wire
// protocol that let external worker processes advertise tool capabilities
// and receive dispatched tool calls from the gateway (SPEC_FULL.md §4.4, §6).
//
// A node connects over a JSON-framed WebSocket, announces its id, type, and
// capability list, and then receives tool.call frames for any tool name the
// registry resolves to it. Capability matching is longest-dotted-prefix: a
// node advertising "browser" can serve calls to "browser" and "browser.click"
// but a node advertising "browser.click" wins the more specific call.
package node
