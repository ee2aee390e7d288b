// Package engine wires the collectors, the offline queue, the risk
// evaluator, the system controller, and the control-plane/activity
// clients into the agent's runtime: one bootstrap step followed by six
// concurrent loops, all torn down together on context cancellation.
package engine

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentrywatch/endpointagent/internal/capability"
	"github.com/sentrywatch/endpointagent/internal/collector"
	"github.com/sentrywatch/endpointagent/internal/config"
	"github.com/sentrywatch/endpointagent/internal/controller"
	"github.com/sentrywatch/endpointagent/internal/event"
	"github.com/sentrywatch/endpointagent/internal/policy"
	"github.com/sentrywatch/endpointagent/internal/queue"
	"github.com/sentrywatch/endpointagent/internal/rpc"
)

// commandPollLimit bounds how many pending commands are fetched per poll.
const commandPollLimit = 20

// Engine owns one endpoint agent's full runtime lifecycle.
type Engine struct {
	cfg            *config.Config
	queue          *queue.Queue
	policyBox      *policy.Box
	policyCache    *policy.Cache
	controller     *controller.Controller
	collectors     []collector.Collector
	agentClient    *rpc.AgentManagementClient
	activityClient *rpc.ActivityClient

	online atomic.Bool
}

// New assembles an Engine from a loaded config and an already-open
// offline queue. The caller owns q's lifecycle (Open/Close); Engine never
// closes it.
func New(cfg *config.Config, q *queue.Queue) *Engine {
	e := &Engine{
		cfg:            cfg,
		queue:          q,
		policyCache:    policy.NewCache(cfg.Runtime.StateDir),
		controller:     controller.New(),
		collectors:     defaultCollectors(cfg),
		agentClient:    rpc.NewAgentManagementClient(cfg.Services.AgentManagementURL, cfg.Agent.ComputerID, cfg.Agent.Version),
		activityClient: rpc.NewActivityClient(cfg.Services.ActivityServiceURL),
	}
	e.policyBox = policy.NewBox(e.basePolicy())
	return e
}

func defaultCollectors(cfg *config.Config) []collector.Collector {
	userID := cfg.Agent.UserID
	computerID := cfg.Agent.ComputerID
	return []collector.Collector{
		collector.NewProcessCollector(computerID, userID),
		collector.NewActiveWindowCollector(computerID, userID),
		collector.NewIdleTimeCollector(computerID, userID),
		collector.NewBrowserHistoryCollector(computerID, userID),
	}
}

// Run bootstraps the agent (loads the cached policy, emits a boot
// presence event) and then runs every loop until ctx is canceled. It
// blocks until all loops have exited and the connections are closed.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.bootstrap(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	loops := []func(context.Context){
		e.collectionLoop,
		e.flushLoop,
		e.heartbeatLoop,
		e.policyLoop,
		e.commandLoop,
		e.lockEnforcementLoop,
	}
	for _, loop := range loops {
		wg.Add(1)
		go func(l func(context.Context)) {
			defer wg.Done()
			l(ctx)
		}(loop)
	}

	<-ctx.Done()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.RPCDeadline)
	defer cancel()
	e.goOffline(shutdownCtx)

	if err := e.activityClient.Close(); err != nil {
		log.Printf("engine: closing activity client: %v", err)
	}
	if err := e.agentClient.Close(); err != nil {
		log.Printf("engine: closing agent management client: %v", err)
	}
	return nil
}

func (e *Engine) goOffline(ctx context.Context) {
	agentID, err := e.agentClient.EnsureRegistered(ctx)
	if err != nil {
		return
	}
	_, _ = e.agentClient.UpdateAgentStatus(ctx, rpc.UpdateAgentStatusRequest{
		AgentID: agentID,
		Status:  "offline",
	})
}

// basePolicy is the runtime-default policy view: built-in defaults
// overridden by the local config file's runtime, collector, and risk
// sections. The cached policy and every control-plane update are merged
// over this base.
func (e *Engine) basePolicy() policy.Policy {
	p := policy.Default()

	if v := e.cfg.Runtime.CollectionIntervalSec; v > 0 {
		p.CollectionIntervalSec = v
	}
	if v := e.cfg.Runtime.HeartbeatIntervalSec; v > 0 {
		p.HeartbeatIntervalSec = v
	}
	if v := e.cfg.Runtime.FlushIntervalSec; v > 0 {
		p.FlushIntervalSec = v
	}

	p.EnableProcessCollection = e.cfg.Collectors.Processes.Enabled
	if v := e.cfg.Collectors.Processes.SnapshotLimit; v > 0 {
		p.ProcessSnapshotLimit = v
	}
	p.EnableBrowserCollection = e.cfg.Collectors.BrowserHistory.Enabled
	if v := e.cfg.Collectors.BrowserHistory.PollIntervalSec; v > 0 {
		p.BrowserPollIntervalSec = v
	}
	if v := e.cfg.Collectors.BrowserHistory.Browsers; len(v) > 0 {
		p.Browsers = v
	}
	p.EnableActiveWindowCollection = e.cfg.Collectors.ActiveWindow.Enabled
	p.EnableIdleCollection = e.cfg.Collectors.IdleTime.Enabled
	if v := e.cfg.Collectors.IdleTime.IdleThresholdSec; v > 0 {
		p.IdleThresholdSec = v
	}

	if v := e.cfg.Risk.LocalHighRiskThreshold; v > 0 {
		p.HighRiskThreshold = v
	}
	p.AutoLockEnabled = e.cfg.Risk.EnableAutoLock

	return p
}

// bootstrap loads the last-known policy over the config-derived base,
// publishes it, and enqueues the SYSTEM_BOOT presence event.
func (e *Engine) bootstrap(ctx context.Context) error {
	pol, err := e.policyCache.LoadOver(e.basePolicy())
	if err != nil {
		log.Printf("engine: policy cache load failed, using defaults: %v", err)
		pol = e.basePolicy()
	}
	e.policyBox.Store(pol)

	caps := capability.Current()
	boot := event.New(e.cfg.Agent.ComputerID, event.SystemBoot)
	boot.Details = map[string]any{
		"agent_version": e.cfg.Agent.Version,
		"device_name":   e.cfg.Agent.DeviceName,
		"agent_user_id": e.cfg.Agent.UserID,
		"username":      capability.CurrentUsername(),
		"presence":      "active",
		"capabilities": map[string]any{
			"platform":            caps.Platform,
			"idle_time_ms":        caps.IdleTimeMs,
			"active_window_title": caps.ActiveWindowTitle,
			"lock_workstation":    caps.LockWorkstation,
		},
	}
	boot.RiskScore = 0

	if _, err := e.queue.EnqueueMany(ctx, []*event.ActivityEvent{boot}); err != nil {
		log.Printf("engine: failed to enqueue boot event: %v", err)
	}
	log.Printf("endpoint agent starting for computer_id=%d", e.cfg.Agent.ComputerID)
	return nil
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return true
	case <-time.After(d):
		return false
	}
}
