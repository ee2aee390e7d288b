package collector

import (
	"log"
	"strings"
	"sync"

	"github.com/sentrywatch/endpointagent/internal/capability"
	"github.com/sentrywatch/endpointagent/internal/event"
	"github.com/sentrywatch/endpointagent/internal/policy"
)

// ActiveWindowCollector emits one ACTIVE_WINDOW_CHANGE event per
// transition: a non-empty foreground title different from the last one
// observed. It degrades to a silent no-op, logging exactly once, when the
// host has no active_window_title capability.
type ActiveWindowCollector struct {
	ComputerID int64
	UserID     *int64

	mu              sync.Mutex
	lastTitle       string
	warnedNoSupport bool

	// supported/titleFunc default to the real capability layer; overridden
	// in tests to drive exact title sequences without a host probe.
	supported func() bool
	titleFunc func() string
}

// NewActiveWindowCollector returns an ActiveWindowCollector tagging every
// emitted event with computerID/userID.
func NewActiveWindowCollector(computerID int64, userID *int64) *ActiveWindowCollector {
	return &ActiveWindowCollector{
		ComputerID: computerID,
		UserID:     userID,
		supported:  func() bool { return capability.Current().ActiveWindowTitle },
		titleFunc:  capability.ActiveWindowTitle,
	}
}

func (c *ActiveWindowCollector) Collect(pol policy.Policy) ([]*event.ActivityEvent, error) {
	if !pol.EnableActiveWindowCollection {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.supported() {
		if !c.warnedNoSupport {
			c.warnedNoSupport = true
			log.Printf("active window collector disabled on platform=%s (capability unavailable)", capability.Current().Platform)
		}
		return nil, nil
	}

	title := strings.TrimSpace(c.titleFunc())
	if title == "" || title == c.lastTitle {
		return nil, nil
	}
	c.lastTitle = title

	e := event.New(c.ComputerID, event.ActiveWindowChange)
	e.RiskScore = 1
	e.Details = map[string]any{
		"window_title":  title,
		"agent_user_id": c.UserID,
	}
	return []*event.ActivityEvent{e}, nil
}
