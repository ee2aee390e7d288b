package collector

import (
	"log"
	"sync"

	"github.com/sentrywatch/endpointagent/internal/capability"
	"github.com/sentrywatch/endpointagent/internal/event"
	"github.com/sentrywatch/endpointagent/internal/policy"
)

// IdleTimeCollector maintains a latched is_idle boolean and emits exactly
// one event per edge crossing of idle_threshold_sec. duration_ms carries
// the measured idle duration on both edges: on USER_IDLE it is the idle
// span measured at the moment of crossing; on USER_ACTIVE it is the idle
// span that just ended.
type IdleTimeCollector struct {
	ComputerID int64
	UserID     *int64

	mu              sync.Mutex
	isIdle          bool
	warnedNoSupport bool

	// supported/idleMsFunc default to the real capability layer; overridden
	// in tests to drive exact idle-ms sequences without a host probe.
	supported  func() bool
	idleMsFunc func() int64
}

// NewIdleTimeCollector returns an IdleTimeCollector tagging every emitted
// event with computerID/userID.
func NewIdleTimeCollector(computerID int64, userID *int64) *IdleTimeCollector {
	return &IdleTimeCollector{
		ComputerID: computerID,
		UserID:     userID,
		supported:  func() bool { return capability.Current().IdleTimeMs },
		idleMsFunc: capability.IdleTimeMs,
	}
}

func (c *IdleTimeCollector) Collect(pol policy.Policy) ([]*event.ActivityEvent, error) {
	if !pol.EnableIdleCollection {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.supported() {
		if !c.warnedNoSupport {
			c.warnedNoSupport = true
			log.Printf("idle time collector disabled on platform=%s (capability unavailable)", capability.Current().Platform)
		}
		return nil, nil
	}

	idleMs := c.idleMsFunc()
	if idleMs < 0 {
		idleMs = 0
	}

	thresholdSec := pol.IdleThresholdSec
	if thresholdSec <= 0 {
		thresholdSec = 120
	}
	nowIdle := idleMs >= int64(thresholdSec)*1000

	if nowIdle == c.isIdle {
		return nil, nil
	}
	c.isIdle = nowIdle

	activityType := event.UserActive
	if nowIdle {
		activityType = event.UserIdle
	}

	e := event.New(c.ComputerID, activityType)
	dur := idleMs
	e.DurationMs = &dur
	e.Details = map[string]any{
		"idle_ms":       idleMs,
		"threshold_sec": thresholdSec,
		"agent_user_id": c.UserID,
	}
	return []*event.ActivityEvent{e}, nil
}
