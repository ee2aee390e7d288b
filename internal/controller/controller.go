// Package controller implements the System Controller: the
// {clear, blocked} state machine that turns a risk-evaluator decision into
// an actual (or virtual) workstation lock, debounced so the enforcement
// loop's repeated calls never spam the host lock API.
package controller

import (
	"log"
	"sync"
	"time"

	"github.com/sentrywatch/endpointagent/internal/capability"
)

// lockDebounce is the minimum interval between real OS-lock invocations.
const lockDebounce = 3 * time.Second

// Controller owns BlockState exclusively; all mutation goes through
// ApplyBlockState.
type Controller struct {
	mu                  sync.Mutex
	active              bool
	reason              string
	lastLockAttemptAt   time.Time
	warnedNoLockSupport bool

	// lockFunc and lockSupported default to the real capability layer;
	// overridable in tests so the debounce and state-transition logic can be
	// exercised without a real OS lock call.
	lockFunc      func() bool
	lockSupported func() bool
}

// New returns a Controller backed by the host's real lock_workstation
// capability.
func New() *Controller {
	return &Controller{
		lockFunc:      capability.LockWorkstation,
		lockSupported: func() bool { return capability.Current().LockWorkstation },
	}
}

// BlockState is a point-in-time snapshot of the controller's state, safe to
// copy and read without holding the controller's lock.
type BlockState struct {
	Active            bool
	Reason            string
	LastLockAttemptAt time.Time
}

// State returns the current block state.
func (c *Controller) State() BlockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return BlockState{Active: c.active, Reason: c.reason, LastLockAttemptAt: c.lastLockAttemptAt}
}

// Active reports whether the controller currently considers the
// workstation blocked (virtual or real).
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Reason returns the current block reason, "" if not blocked.
func (c *Controller) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// ApplyBlockState is the controller's sole mutation entry point:
//
//   - shouldBlock=false clears the block and resets the reason.
//   - shouldBlock=true sets the blocked state and stores reason (defaulting
//     to "policy block" if empty). If the lock_workstation capability is
//     unsupported, it logs once and keeps only the virtual blocked state.
//     Otherwise it rate-limits real lock attempts to at most one per 3
//     seconds of monotonic time.
func (c *Controller) ApplyBlockState(shouldBlock bool, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !shouldBlock {
		if c.active {
			log.Printf("block state cleared by policy/command")
		}
		c.active = false
		c.reason = ""
		return
	}

	c.active = true
	if reason == "" {
		reason = "policy block"
	}
	c.reason = reason

	if !c.lockSupported() {
		if !c.warnedNoLockSupport {
			c.warnedNoLockSupport = true
			log.Printf("lock requested but lock_workstation is not supported on this host (platform=%s); keeping virtual block state only", capability.Current().Platform)
		}
		return
	}

	now := time.Now()
	if !c.lastLockAttemptAt.IsZero() && now.Sub(c.lastLockAttemptAt) < lockDebounce {
		return
	}
	c.lastLockAttemptAt = now

	ok := c.lockFunc()
	log.Printf("lock workstation requested (ok=%v, reason=%s)", ok, c.reason)
}
