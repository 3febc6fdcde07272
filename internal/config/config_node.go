package config

// NodeConfig configures the WebSocket node registry.
type NodeConfig struct {
	// ListenAddr is the address the node WebSocket listener binds to.
	// Default: same host as Server.Host, port 7700.
	ListenAddr string `yaml:"listen_addr"`

	// HandshakeTimeout bounds how long a connecting node has to complete
	// node_hello before the connection is dropped.
	HandshakeTimeout int `yaml:"handshake_timeout_seconds"`

	// Allowlist restricts the tool capabilities a given node ID is allowed
	// to register. Nodes not present use their self-declared capabilities
	// unrestricted.
	Allowlist map[string][]string `yaml:"allowlist"`
}
