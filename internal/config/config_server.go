package config

import (
	"time"
)

type ServerConfig struct {
	Host        string `yaml:"host"`
	GRPCPort    int    `yaml:"grpc_port"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// RunStoreConfig selects the backend for the run ledger (the Run/Node
// records the turn orchestrator produces for every turn it executes).
type RunStoreConfig struct {
	// Driver is "memory" or "sqlite". Default: "memory". Both backings
	// keep only the newest MaxRuns runs queryable; "memory" also mirrors
	// every create/update to an append-only JSONL log under StateDir so
	// the ring survives a restart, while "sqlite" keeps the full history.
	Driver string `yaml:"driver"`

	// Path is the SQLite database file path, used when Driver is "sqlite".
	Path string `yaml:"path"`

	// StateDir is the directory the memory driver appends runs/runs.jsonl
	// under. Empty disables on-disk persistence for the memory driver.
	StateDir string `yaml:"state_dir"`

	// Retention is how long to keep completed runs before pruning.
	Retention time.Duration `yaml:"retention"`
}
