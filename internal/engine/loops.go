package engine

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"

	"github.com/sentrywatch/endpointagent/internal/agentlog"
	"github.com/sentrywatch/endpointagent/internal/config"
	"github.com/sentrywatch/endpointagent/internal/event"
	"github.com/sentrywatch/endpointagent/internal/policy"
	"github.com/sentrywatch/endpointagent/internal/risk"
	"github.com/sentrywatch/endpointagent/internal/rpc"
)

// collectionLoop polls every collector, appends a WORKSTATION_BLOCK_ENFORCED
// presence event whenever the controller currently holds a block, runs the
// risk evaluator over the batch, and enqueues everything.
func (e *Engine) collectionLoop(ctx context.Context) {
	for {
		pol := e.policyBox.Get()

		var events []*event.ActivityEvent
		for _, c := range e.collectors {
			got, err := c.Collect(pol)
			if err != nil {
				log.Printf("engine: collector error: %v", err)
				continue
			}
			events = append(events, got...)
		}

		if e.controller.Active() {
			blocked := event.New(e.cfg.Agent.ComputerID, event.WorkstationBlockEnforced)
			blocked.Details["reason"] = e.controller.Reason()
			blocked.Details["agent_user_id"] = e.cfg.Agent.UserID
			blocked.IsBlocked = true
			events = append(events, blocked)
		}

		if len(events) > 0 {
			decision := risk.Evaluate(events, pol, e.cfg.Risk.LocalHighRiskThreshold, e.cfg.Risk.EnableAutoLock)
			if decision.ShouldBlock {
				e.controller.ApplyBlockState(true, decision.Reason)
			}
			if _, err := e.queue.EnqueueMany(ctx, events); err != nil {
				log.Printf("engine: enqueue failed: %v", err)
			}
			agentlog.Debugf("engine: collected %d events (queue depth %d)", len(events), e.queue.Depth())
		}

		if sleepOrDone(ctx, config.ClampedCollectionInterval(pol.CollectionIntervalSec)) {
			return
		}
	}
}

// flushLoop drains the offline queue in FIFO batches and sends each event
// to the activity sink, stopping at the first failure in a batch so the
// remainder stays queued for the next attempt.
func (e *Engine) flushLoop(ctx context.Context) {
	for {
		pol := e.policyBox.Get()
		batch, err := e.queue.DequeueBatch(ctx, e.cfg.Runtime.MaxBatchSize)
		if err != nil {
			log.Printf("engine: dequeue failed: %v", err)
		}

		if len(batch) == 0 {
			if sleepOrDone(ctx, config.ClampedFlushInterval(pol.FlushIntervalSec)) {
				return
			}
			continue
		}

		var sent, failed []int64
		for _, row := range batch {
			if err := e.activityClient.SendActivity(ctx, row.Event); err != nil {
				failed = append(failed, row.ID)
				e.online.Store(false)
				break
			}
			sent = append(sent, row.ID)
			e.online.Store(true)
		}

		if len(sent) > 0 {
			if err := e.queue.MarkSent(ctx, sent); err != nil {
				log.Printf("engine: mark sent failed: %v", err)
			}
		}
		if len(failed) > 0 {
			if err := e.queue.MarkFailed(ctx, failed, "grpc send failed"); err != nil {
				log.Printf("engine: mark failed failed: %v", err)
			}
		}

		agentlog.Debugf("engine: flushed %d events, %d failed", len(sent), len(failed))

		// A fully delivered batch means there may be more behind it; drain
		// immediately. Sleep only after a failure, so a struggling sink gets
		// one flush interval of backpressure before the retry.
		if len(failed) == 0 && ctx.Err() == nil {
			continue
		}
		if sleepOrDone(ctx, config.ClampedFlushInterval(pol.FlushIntervalSec)) {
			return
		}
	}
}

// heartbeatLoop reports the agent's online/degraded status every
// policy.HeartbeatIntervalSec seconds (at least 5).
func (e *Engine) heartbeatLoop(ctx context.Context) {
	for {
		pol := e.policyBox.Get()
		status := "degraded"
		if e.online.Load() {
			status = "online"
		}

		agentID, err := e.agentClient.EnsureRegistered(ctx)
		if err != nil {
			log.Printf("engine: heartbeat: agent not registered: %v", err)
		} else {
			resp, err := e.agentClient.UpdateAgentStatus(ctx, rpc.UpdateAgentStatusRequest{
				AgentID: agentID,
				Status:  status,
			})
			if err != nil {
				log.Printf("engine: heartbeat failed: %v", err)
				e.online.Store(false)
			} else {
				e.online.Store(resp.Success)
			}
		}

		if sleepOrDone(ctx, config.ClampedHeartbeatInterval(pol.HeartbeatIntervalSec)) {
			return
		}
	}
}

// policyLoop fetches the agent's signed policy from the control plane,
// verifies the signature, and only then merges and publishes it. A
// policy that fails verification is logged and discarded, leaving the
// last-known-good policy in place.
func (e *Engine) policyLoop(ctx context.Context) {
	for {
		agentID, err := e.agentClient.EnsureRegistered(ctx)
		if err != nil {
			log.Printf("engine: policy refresh: agent not registered: %v", err)
		} else if resp, err := e.agentClient.GetAgentPolicy(ctx, rpc.GetAgentPolicyRequest{AgentID: agentID}); err != nil {
			log.Printf("engine: policy refresh failed, using cached policy: %v", err)
		} else if resp.Success {
			if err := rpc.VerifyPolicy(e.cfg.Security.ControlPlaneSigning, resp.Policy); err != nil {
				log.Printf("engine: rejecting policy update: %v", err)
			} else {
				merged := policy.Merge(e.basePolicy(), policyFromMessage(resp.Policy))
				e.policyBox.Store(merged)
				if err := e.policyCache.Save(merged); err != nil {
					log.Printf("engine: saving policy cache: %v", err)
				}
				log.Printf("engine: policy updated from control plane (version=%d)", merged.PolicyVersion)
			}
		}

		if sleepOrDone(ctx, config.ClampedPolicyRefreshInterval(e.cfg.Runtime.PolicyRefreshIntervalSec)) {
			return
		}
	}
}

// commandLoop polls pending admin commands, verifies each one's signature,
// and applies BLOCK_WORKSTATION/UNBLOCK_WORKSTATION commands through the
// controller before acknowledging them.
func (e *Engine) commandLoop(ctx context.Context) {
	for {
		agentID, err := e.agentClient.EnsureRegistered(ctx)
		if err != nil {
			log.Printf("engine: command poll: agent not registered: %v", err)
		} else if resp, err := e.agentClient.GetPendingAgentCommands(ctx, rpc.GetPendingAgentCommandsRequest{AgentID: agentID, Limit: commandPollLimit}); err != nil {
			log.Printf("engine: command poll failed: %v", err)
		} else if resp.Success {
			for _, cmd := range resp.Commands {
				e.handleCommand(ctx, cmd)
			}
		}

		if sleepOrDone(ctx, config.CommandPollInterval) {
			return
		}
	}
}

func (e *Engine) handleCommand(ctx context.Context, cmd rpc.CommandMessage) {
	if err := rpc.VerifyCommand(e.cfg.Security.ControlPlaneSigning, cmd); err != nil {
		log.Printf("engine: rejecting command %s: %v", cmd.ID, err)
		e.ackCommand(ctx, cmd.ID, "failed", "Invalid command signature")
		return
	}

	var payload struct {
		Reason string `json:"reason"`
	}
	if cmd.PayloadJSON != "" {
		_ = json.Unmarshal([]byte(cmd.PayloadJSON), &payload)
	}

	switch strings.ToUpper(cmd.Type) {
	case "BLOCK_WORKSTATION":
		reason := payload.Reason
		if reason == "" {
			reason = "admin command"
		}
		pol := e.policyBox.Get()
		pol.AdminBlocked = true
		pol.BlockedReason = reason
		e.policyBox.Store(pol)
		if err := e.policyCache.Save(pol); err != nil {
			log.Printf("engine: saving policy after block command: %v", err)
		}
		e.controller.ApplyBlockState(true, reason)
		e.ackCommand(ctx, cmd.ID, "success", "workstation blocked")
	case "UNBLOCK_WORKSTATION":
		pol := e.policyBox.Get()
		pol.AdminBlocked = false
		pol.BlockedReason = ""
		e.policyBox.Store(pol)
		if err := e.policyCache.Save(pol); err != nil {
			log.Printf("engine: saving policy after unblock command: %v", err)
		}
		e.controller.ApplyBlockState(false, "")
		e.ackCommand(ctx, cmd.ID, "success", "workstation unblocked")
	default:
		e.ackCommand(ctx, cmd.ID, "ignored", "unsupported command: "+cmd.Type)
	}
}

func (e *Engine) ackCommand(ctx context.Context, commandIDStr, status, message string) {
	commandID, err := strconv.ParseInt(commandIDStr, 10, 64)
	if err != nil {
		log.Printf("engine: ack command: id %q is not numeric: %v", commandIDStr, err)
		return
	}
	if _, err := e.agentClient.AckAgentCommand(ctx, rpc.AckAgentCommandRequest{
		CommandID:     commandID,
		Status:        status,
		ResultMessage: message,
	}); err != nil {
		log.Printf("engine: ack command %s failed: %v", commandIDStr, err)
	}
}

// lockEnforcementLoop re-asserts an admin block on a short fixed period,
// independent of the collection loop, so a block survives even if the
// collection loop is slow or a collector is misbehaving.
func (e *Engine) lockEnforcementLoop(ctx context.Context) {
	for {
		pol := e.policyBox.Get()
		if pol.AdminBlocked {
			reason := pol.BlockedReason
			if reason == "" {
				reason = "admin block"
			}
			e.controller.ApplyBlockState(true, reason)
		}

		if sleepOrDone(ctx, config.LockEnforcementInterval) {
			return
		}
	}
}

// policyFromMessage converts the wire PolicyMessage into the in-process
// Policy struct. The wire message carries its integer fields (including
// PolicyVersion) as int64; policy.Policy stores them as int.
func policyFromMessage(m rpc.PolicyMessage) policy.Policy {
	return policy.Policy{
		PolicyVersion:                int(m.PolicyVersion),
		CollectionIntervalSec:        int(m.CollectionIntervalSec),
		HeartbeatIntervalSec:         int(m.HeartbeatIntervalSec),
		FlushIntervalSec:             int(m.FlushIntervalSec),
		EnableProcessCollection:      m.EnableProcessCollection,
		EnableBrowserCollection:      m.EnableBrowserCollection,
		EnableActiveWindowCollection: m.EnableActiveWindowCollection,
		EnableIdleCollection:         m.EnableIdleCollection,
		IdleThresholdSec:             int(m.IdleThresholdSec),
		BrowserPollIntervalSec:       int(m.BrowserPollIntervalSec),
		ProcessSnapshotLimit:         int(m.ProcessSnapshotLimit),
		HighRiskThreshold:            m.HighRiskThreshold,
		AutoLockEnabled:              m.AutoLockEnabled,
		AdminBlocked:                 m.AdminBlocked,
		BlockedReason:                m.BlockedReason,
		UpdatedAt:                    m.UpdatedAt,
		Browsers:                     m.Browsers,
	}
}
