// Package config loads the agent's YAML configuration file into typed
// structs and provides the built-in runtime defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Agent      AgentIdentity    `yaml:"agent"`
	Services   ServicesConfig   `yaml:"services"`
	Runtime    RuntimeConfig    `yaml:"runtime"`
	Collectors CollectorsConfig `yaml:"collectors"`
	Risk       RiskConfig       `yaml:"risk"`
	Security   SecurityConfig   `yaml:"security"`
}

type AgentIdentity struct {
	ComputerID int64  `yaml:"computer_id"`
	UserID     *int64 `yaml:"user_id"`
	Version    string `yaml:"version"`
	DeviceName string `yaml:"device_name"`
}

type ServicesConfig struct {
	ActivityServiceURL string `yaml:"activity_service_url"`
	AgentManagementURL string `yaml:"agent_management_url"`
}

type RuntimeConfig struct {
	StateDir                 string `yaml:"state_dir"`
	HeartbeatIntervalSec     int    `yaml:"heartbeat_interval_sec"`
	PolicyRefreshIntervalSec int    `yaml:"policy_refresh_interval_sec"`
	FlushIntervalSec         int    `yaml:"flush_interval_sec"`
	CollectionIntervalSec    int    `yaml:"collection_interval_sec"`
	MaxBatchSize             int    `yaml:"max_batch_size"`
}

type ProcessCollectorConfig struct {
	Enabled       bool `yaml:"enabled"`
	SnapshotLimit int  `yaml:"snapshot_limit"`
}

type BrowserCollectorConfig struct {
	Enabled         bool     `yaml:"enabled"`
	PollIntervalSec int      `yaml:"poll_interval_sec"`
	Browsers        []string `yaml:"browsers"`
}

type ActiveWindowCollectorConfig struct {
	Enabled bool `yaml:"enabled"`
}

type IdleCollectorConfig struct {
	Enabled          bool `yaml:"enabled"`
	IdleThresholdSec int  `yaml:"idle_threshold_sec"`
}

type CollectorsConfig struct {
	Processes      ProcessCollectorConfig      `yaml:"processes"`
	BrowserHistory BrowserCollectorConfig      `yaml:"browser_history"`
	ActiveWindow   ActiveWindowCollectorConfig `yaml:"active_window"`
	IdleTime       IdleCollectorConfig         `yaml:"idle_time"`
}

type RiskConfig struct {
	LocalHighRiskThreshold float64 `yaml:"local_high_risk_threshold"`
	EnableAutoLock         bool    `yaml:"enable_auto_lock"`
}

// SigningConfig holds the shared secret used to verify signed policy and
// command payloads from the control plane. See internal/rpc (signature.go)
// for the verification algorithm.
type SigningConfig struct {
	Secret        string `yaml:"secret"`
	KeyID         string `yaml:"key_id"`
	AllowUnsigned bool   `yaml:"allow_unsigned"`
}

type SecurityConfig struct {
	ControlPlaneSigning SigningConfig `yaml:"control_plane_signing"`
}

// Load reads and parses the YAML config file at path, overlaying it on
// top of the built-in defaults so that a sparse file only needs to set
// the fields it wants to override.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Agent.ComputerID == 0 {
		return nil, fmt.Errorf("config %s: agent.computer_id is required", path)
	}
	if cfg.Runtime.StateDir == "" {
		cfg.Runtime.StateDir = "./state"
	}
	stateDir, err := filepath.Abs(cfg.Runtime.StateDir)
	if err != nil {
		return nil, fmt.Errorf("resolving state_dir: %w", err)
	}
	cfg.Runtime.StateDir = stateDir
	if err := os.MkdirAll(cfg.Runtime.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state_dir %s: %w", cfg.Runtime.StateDir, err)
	}

	return cfg, nil
}

// Default returns the built-in runtime defaults: the config in effect
// before any file is loaded or any on-disk policy cache exists.
func Default() *Config {
	return &Config{
		Agent: AgentIdentity{
			Version:    "0.1.0",
			DeviceName: "unknown-device",
		},
		Services: ServicesConfig{
			ActivityServiceURL: "localhost:5001",
			AgentManagementURL: "localhost:5015",
		},
		Runtime: RuntimeConfig{
			StateDir:                 "./state",
			HeartbeatIntervalSec:     15,
			PolicyRefreshIntervalSec: 30,
			FlushIntervalSec:         5,
			CollectionIntervalSec:    5,
			MaxBatchSize:             100,
		},
		Collectors: CollectorsConfig{
			Processes:      ProcessCollectorConfig{Enabled: true, SnapshotLimit: 50},
			BrowserHistory: BrowserCollectorConfig{Enabled: true, PollIntervalSec: 10, Browsers: []string{"chrome", "edge", "firefox"}},
			ActiveWindow:   ActiveWindowCollectorConfig{Enabled: true},
			IdleTime:       IdleCollectorConfig{Enabled: true, IdleThresholdSec: 120},
		},
		Risk: RiskConfig{
			LocalHighRiskThreshold: 85.0,
			EnableAutoLock:         true,
		},
	}
}

// Timing constants and floors that apply regardless of what a policy or
// config file requests.
const (
	MinCollectionIntervalSec = 1
	MinFlushIntervalSec      = 1
	MinHeartbeatIntervalSec  = 5
	MinPolicyRefreshSec      = 5
	CommandPollInterval      = 5 * time.Second
	LockEnforcementInterval  = 2 * time.Second
	RPCDeadline              = 5 * time.Second
)

func clampMin(v, min int) int {
	if v < min {
		return min
	}
	return v
}

// ClampedCollectionInterval returns the collection interval clamped to its
// 1-second floor.
func ClampedCollectionInterval(sec int) time.Duration {
	return time.Duration(clampMin(sec, MinCollectionIntervalSec)) * time.Second
}

// ClampedFlushInterval returns the flush interval clamped to its 1-second
// floor.
func ClampedFlushInterval(sec int) time.Duration {
	return time.Duration(clampMin(sec, MinFlushIntervalSec)) * time.Second
}

// ClampedHeartbeatInterval returns the heartbeat interval clamped to its
// 5-second floor.
func ClampedHeartbeatInterval(sec int) time.Duration {
	return time.Duration(clampMin(sec, MinHeartbeatIntervalSec)) * time.Second
}

// ClampedPolicyRefreshInterval returns the policy refresh interval clamped
// to its 5-second floor.
func ClampedPolicyRefreshInterval(sec int) time.Duration {
	return time.Duration(clampMin(sec, MinPolicyRefreshSec)) * time.Second
}
