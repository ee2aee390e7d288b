package rpc

import "github.com/sentrywatch/endpointagent/internal/event"

// PolicyMessage is the wire shape of a Policy fetched from the control
// plane, including the signature envelope carried on every incoming
// policy. Field names mirror the RPC schema; JSON tags are consulted only
// by the JSON codec (see codec.go), not by canonical payload
// construction, which reads struct fields directly to guarantee the fixed
// signing field order.
type PolicyMessage struct {
	Kind                         string   `json:"kind"`
	ID                           string   `json:"id"`
	AgentID                      int64    `json:"agent_id"`
	ComputerID                   int64    `json:"computer_id"`
	PolicyVersion                int64    `json:"policy_version"`
	CollectionIntervalSec        int64    `json:"collection_interval_sec"`
	HeartbeatIntervalSec         int64    `json:"heartbeat_interval_sec"`
	FlushIntervalSec             int64    `json:"flush_interval_sec"`
	EnableProcessCollection      bool     `json:"enable_process_collection"`
	EnableBrowserCollection      bool     `json:"enable_browser_collection"`
	EnableActiveWindowCollection bool     `json:"enable_active_window_collection"`
	EnableIdleCollection         bool     `json:"enable_idle_collection"`
	IdleThresholdSec             int64    `json:"idle_threshold_sec"`
	BrowserPollIntervalSec       int64    `json:"browser_poll_interval_sec"`
	ProcessSnapshotLimit         int64    `json:"process_snapshot_limit"`
	HighRiskThreshold            float64  `json:"high_risk_threshold"`
	AutoLockEnabled              bool     `json:"auto_lock_enabled"`
	AdminBlocked                 bool     `json:"admin_blocked"`
	BlockedReason                string   `json:"blocked_reason"`
	UpdatedAt                    string   `json:"updated_at"`
	Browsers                     []string `json:"browsers"`

	Signature      string `json:"signature"`
	SignatureKeyID string `json:"signature_key_id"`
	SignatureAlg   string `json:"signature_alg"`
}

// Canonical builds the signing payload for this policy message in its
// fixed field order: kind, id, agent_id, computer_id,
// policy_version, collection_interval_sec, heartbeat_interval_sec,
// flush_interval_sec, enable_*, idle_threshold_sec,
// browser_poll_interval_sec, process_snapshot_limit,
// high_risk_threshold_f32bits, auto_lock_enabled, admin_blocked,
// blocked_reason, updated_at, browsers_count, browsers_0..N-1.
func (p PolicyMessage) Canonical() string {
	b := newCanonicalBuilder()
	b.Str("kind", p.Kind)
	b.Str("id", p.ID)
	b.Int("agent_id", p.AgentID)
	b.Int("computer_id", p.ComputerID)
	b.Int("policy_version", p.PolicyVersion)
	b.Int("collection_interval_sec", p.CollectionIntervalSec)
	b.Int("heartbeat_interval_sec", p.HeartbeatIntervalSec)
	b.Int("flush_interval_sec", p.FlushIntervalSec)
	b.Bool("enable_process_collection", p.EnableProcessCollection)
	b.Bool("enable_browser_collection", p.EnableBrowserCollection)
	b.Bool("enable_active_window_collection", p.EnableActiveWindowCollection)
	b.Bool("enable_idle_collection", p.EnableIdleCollection)
	b.Int("idle_threshold_sec", p.IdleThresholdSec)
	b.Int("browser_poll_interval_sec", p.BrowserPollIntervalSec)
	b.Int("process_snapshot_limit", p.ProcessSnapshotLimit)
	b.F32Bits("high_risk_threshold", p.HighRiskThreshold)
	b.Bool("auto_lock_enabled", p.AutoLockEnabled)
	b.Bool("admin_blocked", p.AdminBlocked)
	b.Str("blocked_reason", p.BlockedReason)
	b.Str("updated_at", p.UpdatedAt)
	b.Repeated("browsers", p.Browsers)
	return b.Build()
}

// CommandMessage is the wire shape of a pending agent command, including
// the same signature envelope as PolicyMessage.
type CommandMessage struct {
	Kind           string `json:"kind"`
	ID             string `json:"id"`
	AgentID        int64  `json:"agent_id"`
	Type           string `json:"type"`
	PayloadJSON    string `json:"payload_json"`
	Status         string `json:"status"`
	RequestedBy    string `json:"requested_by"`
	ResultMessage  string `json:"result_message"`
	CreatedAt      string `json:"created_at"`
	AcknowledgedAt string `json:"acknowledged_at"`

	Signature      string `json:"signature"`
	SignatureKeyID string `json:"signature_key_id"`
	SignatureAlg   string `json:"signature_alg"`
}

// Canonical builds the signing payload for this command message in its
// fixed field order: kind, id, agent_id, type,
// payload_json, status, requested_by, result_message, created_at,
// acknowledged_at.
func (c CommandMessage) Canonical() string {
	b := newCanonicalBuilder()
	b.Str("kind", c.Kind)
	b.Str("id", c.ID)
	b.Int("agent_id", c.AgentID)
	b.Str("type", c.Type)
	b.Str("payload_json", c.PayloadJSON)
	b.Str("status", c.Status)
	b.Str("requested_by", c.RequestedBy)
	b.Str("result_message", c.ResultMessage)
	b.Str("created_at", c.CreatedAt)
	b.Str("acknowledged_at", c.AcknowledgedAt)
	return b.Build()
}

// Agent management RPC request/response shapes. These ride the JSON codec
// (see codec.go) as plain structs; there is no protoc-generated
// counterpart in this build.

type RegisterAgentRequest struct {
	ComputerID    int64  `json:"computer_id"`
	Version       string `json:"version"`
	ConfigVersion string `json:"config_version"`
}

type AgentRecord struct {
	ID int64 `json:"id"`
}

type RegisterAgentResponse struct {
	Success bool         `json:"success"`
	Agent   *AgentRecord `json:"agent"`
	Message string       `json:"message"`
}

type GetAgentsByComputerRequest struct {
	ComputerID int64 `json:"computer_id"`
}

type GetAgentsByComputerResponse struct {
	Success bool          `json:"success"`
	Agents  []AgentRecord `json:"agents"`
}

type UpdateAgentStatusRequest struct {
	AgentID       int64  `json:"agent_id"`
	Status        string `json:"status"`
	ConfigVersion string `json:"config_version"`
}

type UpdateAgentStatusResponse struct {
	Success bool `json:"success"`
}

type GetAgentPolicyRequest struct {
	AgentID int64 `json:"agent_id"`
}

type GetAgentPolicyResponse struct {
	Success bool          `json:"success"`
	Policy  PolicyMessage `json:"policy"`
}

type GetPendingAgentCommandsRequest struct {
	AgentID int64 `json:"agent_id"`
	Limit   int32 `json:"limit"`
}

type GetPendingAgentCommandsResponse struct {
	Success  bool             `json:"success"`
	Commands []CommandMessage `json:"commands"`
}

type AckAgentCommandRequest struct {
	CommandID     int64  `json:"command_id"`
	Status        string `json:"status"`
	ResultMessage string `json:"result_message"`
}

type AckAgentCommandResponse struct {
	Success bool `json:"success"`
}

// Activity sink RPC request/response shapes. The wire payload itself is
// event.WirePayload; the activity client never re-derives that shape.

type CreateActivityRequest struct {
	Activity event.WirePayload `json:"activity"`
}

type CreateActivityResponse struct {
	Success bool `json:"success"`
}
