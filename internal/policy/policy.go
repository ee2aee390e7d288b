// Package policy holds the agent's active Policy: the merged-with-defaults
// set of tunables that governs collection intervals, enabled collectors,
// risk thresholds, and the admin block flag. It is published by the policy
// loop and the command loop and read without locking by every other loop,
// via Box's atomic pointer swap.
package policy

// Policy is a typed record of every recognized control-plane option.
// Unknown keys from a newer server are ignored on decode; omitted numeric
// keys, updated_at and browsers fall back to the cached or default value
// via Merge (see Merge for the boolean keys and blocked_reason).
type Policy struct {
	PolicyVersion                int      `json:"policy_version"`
	CollectionIntervalSec        int      `json:"collection_interval_sec"`
	HeartbeatIntervalSec         int      `json:"heartbeat_interval_sec"`
	FlushIntervalSec             int      `json:"flush_interval_sec"`
	EnableProcessCollection      bool     `json:"enable_process_collection"`
	EnableBrowserCollection      bool     `json:"enable_browser_collection"`
	EnableActiveWindowCollection bool     `json:"enable_active_window_collection"`
	EnableIdleCollection         bool     `json:"enable_idle_collection"`
	IdleThresholdSec             int      `json:"idle_threshold_sec"`
	BrowserPollIntervalSec       int      `json:"browser_poll_interval_sec"`
	ProcessSnapshotLimit         int      `json:"process_snapshot_limit"`
	HighRiskThreshold            float64  `json:"high_risk_threshold"`
	AutoLockEnabled              bool     `json:"auto_lock_enabled"`
	AdminBlocked                 bool     `json:"admin_blocked"`
	BlockedReason                string   `json:"blocked_reason"`
	UpdatedAt                    string   `json:"updated_at"`
	Browsers                     []string `json:"browsers"`
}

// Default returns the built-in policy defaults, active before any
// control-plane fetch succeeds and before any cache file exists.
func Default() Policy {
	return Policy{
		CollectionIntervalSec:        5,
		HeartbeatIntervalSec:         15,
		FlushIntervalSec:             5,
		EnableProcessCollection:      true,
		EnableBrowserCollection:      true,
		EnableActiveWindowCollection: true,
		EnableIdleCollection:         true,
		IdleThresholdSec:             120,
		BrowserPollIntervalSec:       10,
		ProcessSnapshotLimit:         50,
		HighRiskThreshold:            85.0,
		AutoLockEnabled:              true,
		AdminBlocked:                 false,
		Browsers:                     []string{"chrome", "edge", "firefox"},
	}
}

// Merge overlays overlay onto base. For the numeric fields, UpdatedAt and
// Browsers, a zero value (0, "", empty slice) is treated as "not set" and
// the base value is kept, so a partially populated policy fetched from the
// control plane never clobbers those fields. The boolean fields and
// BlockedReason are always taken from overlay: an overlay that omits them
// sets them to false and "".
func Merge(base, overlay Policy) Policy {
	merged := base

	if overlay.PolicyVersion != 0 {
		merged.PolicyVersion = overlay.PolicyVersion
	}
	if overlay.CollectionIntervalSec != 0 {
		merged.CollectionIntervalSec = overlay.CollectionIntervalSec
	}
	if overlay.HeartbeatIntervalSec != 0 {
		merged.HeartbeatIntervalSec = overlay.HeartbeatIntervalSec
	}
	if overlay.FlushIntervalSec != 0 {
		merged.FlushIntervalSec = overlay.FlushIntervalSec
	}
	merged.EnableProcessCollection = overlay.EnableProcessCollection
	merged.EnableBrowserCollection = overlay.EnableBrowserCollection
	merged.EnableActiveWindowCollection = overlay.EnableActiveWindowCollection
	merged.EnableIdleCollection = overlay.EnableIdleCollection
	if overlay.IdleThresholdSec != 0 {
		merged.IdleThresholdSec = overlay.IdleThresholdSec
	}
	if overlay.BrowserPollIntervalSec != 0 {
		merged.BrowserPollIntervalSec = overlay.BrowserPollIntervalSec
	}
	if overlay.ProcessSnapshotLimit != 0 {
		merged.ProcessSnapshotLimit = overlay.ProcessSnapshotLimit
	}
	if overlay.HighRiskThreshold != 0 {
		merged.HighRiskThreshold = overlay.HighRiskThreshold
	}
	merged.AutoLockEnabled = overlay.AutoLockEnabled
	merged.AdminBlocked = overlay.AdminBlocked
	merged.BlockedReason = overlay.BlockedReason
	if overlay.UpdatedAt != "" {
		merged.UpdatedAt = overlay.UpdatedAt
	}
	if len(overlay.Browsers) > 0 {
		merged.Browsers = overlay.Browsers
	}

	return merged
}
