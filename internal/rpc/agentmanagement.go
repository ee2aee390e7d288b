package rpc

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/sentrywatch/endpointagent/internal/config"
)

// Agent management RPC method names. There is no protoc-generated client
// in this build (see messages.go); these are invoked directly through
// conn.Invoke with the JSON codec registered in codec.go.
const (
	methodRegisterAgent           = "/agentmanagement.AgentManagementService/RegisterAgent"
	methodGetAgentsByComputer     = "/agentmanagement.AgentManagementService/GetAgentsByComputer"
	methodUpdateAgentStatus       = "/agentmanagement.AgentManagementService/UpdateAgentStatus"
	methodGetAgentPolicy          = "/agentmanagement.AgentManagementService/GetAgentPolicy"
	methodGetPendingAgentCommands = "/agentmanagement.AgentManagementService/GetPendingAgentCommands"
	methodAckAgentCommand         = "/agentmanagement.AgentManagementService/AckAgentCommand"
)

// AgentManagementClient wraps the control-plane connection used for
// registration, heartbeats, policy refresh and command polling. The
// underlying grpc.ClientConn is dialed lazily and held open for the life
// of the agent; individual RPCs each carry their own deadline (see
// config.RPCDeadline) rather than one shared per-connection timeout.
//
// It also caches the agent id returned by the control plane the first
// time EnsureRegistered succeeds, so callers never need to carry that
// state themselves.
type AgentManagementClient struct {
	target        string
	computerID    int64
	version       string
	configVersion string

	mu      sync.Mutex
	conn    *grpc.ClientConn
	agentID int64
}

// NewAgentManagementClient constructs a client for the given
// "host:port" target. Dialing happens on first use.
func NewAgentManagementClient(target string, computerID int64, version string) *AgentManagementClient {
	return &AgentManagementClient{
		target:        target,
		computerID:    computerID,
		version:       version,
		configVersion: "1",
	}
}

func (c *AgentManagementClient) connection() (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := grpc.NewClient(c.target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("rpc: dial agent management at %s: %w", c.target, err)
	}
	c.conn = conn
	return conn, nil
}

// Close tears down the underlying connection, if one was ever dialed.
func (c *AgentManagementClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *AgentManagementClient) invoke(ctx context.Context, method string, req, resp any) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, config.RPCDeadline)
	defer cancel()
	if err := conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return fmt.Errorf("rpc: %s: %w", method, err)
	}
	return nil
}

// RegisterAgent presents this computer's identity to the control plane
// and returns the agent record it should use for every subsequent call.
// If registration reports failure but the computer already has an agent
// record (a restart racing a prior registration), the caller should fall
// back to GetAgentsByComputer; the control plane leaves that fallback to
// the client rather than making RegisterAgent idempotent server-side.
func (c *AgentManagementClient) RegisterAgent(ctx context.Context, req RegisterAgentRequest) (RegisterAgentResponse, error) {
	var resp RegisterAgentResponse
	err := c.invoke(ctx, methodRegisterAgent, req, &resp)
	return resp, err
}

// GetAgentsByComputer lists agent records already registered for a
// computer id, used as RegisterAgent's fallback path.
func (c *AgentManagementClient) GetAgentsByComputer(ctx context.Context, req GetAgentsByComputerRequest) (GetAgentsByComputerResponse, error) {
	var resp GetAgentsByComputerResponse
	err := c.invoke(ctx, methodGetAgentsByComputer, req, &resp)
	return resp, err
}

// UpdateAgentStatus sends a heartbeat for the given agent id.
func (c *AgentManagementClient) UpdateAgentStatus(ctx context.Context, req UpdateAgentStatusRequest) (UpdateAgentStatusResponse, error) {
	var resp UpdateAgentStatusResponse
	err := c.invoke(ctx, methodUpdateAgentStatus, req, &resp)
	return resp, err
}

// GetAgentPolicy fetches the agent's current signed policy.
func (c *AgentManagementClient) GetAgentPolicy(ctx context.Context, req GetAgentPolicyRequest) (GetAgentPolicyResponse, error) {
	var resp GetAgentPolicyResponse
	err := c.invoke(ctx, methodGetAgentPolicy, req, &resp)
	return resp, err
}

// GetPendingAgentCommands fetches up to req.Limit pending signed commands.
func (c *AgentManagementClient) GetPendingAgentCommands(ctx context.Context, req GetPendingAgentCommandsRequest) (GetPendingAgentCommandsResponse, error) {
	var resp GetPendingAgentCommandsResponse
	err := c.invoke(ctx, methodGetPendingAgentCommands, req, &resp)
	return resp, err
}

// AckAgentCommand reports the outcome of executing a command.
func (c *AgentManagementClient) AckAgentCommand(ctx context.Context, req AckAgentCommandRequest) (AckAgentCommandResponse, error) {
	var resp AckAgentCommandResponse
	err := c.invoke(ctx, methodAckAgentCommand, req, &resp)
	return resp, err
}

// EnsureRegistered returns the cached agent id, registering with the
// control plane on first call. If RegisterAgent reports failure (the
// computer already has an agent record from a prior run) it falls back
// to GetAgentsByComputer and uses the first match.
func (c *AgentManagementClient) EnsureRegistered(ctx context.Context) (int64, error) {
	c.mu.Lock()
	cached := c.agentID
	c.mu.Unlock()
	if cached != 0 {
		return cached, nil
	}

	resp, err := c.RegisterAgent(ctx, RegisterAgentRequest{
		ComputerID:    c.computerID,
		Version:       c.version,
		ConfigVersion: c.configVersion,
	})
	if err == nil && resp.Success && resp.Agent != nil && resp.Agent.ID != 0 {
		c.mu.Lock()
		c.agentID = resp.Agent.ID
		c.mu.Unlock()
		return resp.Agent.ID, nil
	}

	lookup, lookupErr := c.GetAgentsByComputer(ctx, GetAgentsByComputerRequest{ComputerID: c.computerID})
	if lookupErr != nil {
		if err != nil {
			return 0, fmt.Errorf("rpc: register agent: %w (fallback lookup also failed: %v)", err, lookupErr)
		}
		return 0, fmt.Errorf("rpc: register agent reported failure; fallback lookup failed: %w", lookupErr)
	}
	if !lookup.Success || len(lookup.Agents) == 0 {
		return 0, fmt.Errorf("rpc: agent not registered and no existing record for computer_id=%d", c.computerID)
	}

	c.mu.Lock()
	c.agentID = lookup.Agents[0].ID
	c.mu.Unlock()
	return lookup.Agents[0].ID, nil
}
