// Package risk implements the pure block/no-block decision function that
// sits between the collectors and the system controller: given a batch of
// events and the active policy, it decides whether the workstation should
// be locked, and why.
package risk

import (
	"fmt"

	"github.com/sentrywatch/endpointagent/internal/event"
	"github.com/sentrywatch/endpointagent/internal/policy"
)

// Decision is the outcome of one Evaluate call.
type Decision struct {
	ShouldBlock bool
	Reason      string
}

// Evaluate decides in three steps: an admin block always wins, auto-lock
// disabled means never block, otherwise the first event at or above the
// threshold (in scan order) blocks. Evaluate never mutates
// its inputs and its result depends only on the set of risk scores relative
// to the threshold plus the admin flag, never on ordering when nothing
// crosses the threshold.
func Evaluate(events []*event.ActivityEvent, pol policy.Policy, defaultThreshold float64, defaultAutoLock bool) Decision {
	if pol.AdminBlocked {
		reason := pol.BlockedReason
		if reason == "" {
			reason = "admin block"
		}
		return Decision{ShouldBlock: true, Reason: reason}
	}

	if !pol.AutoLockEnabled {
		return Decision{ShouldBlock: false}
	}

	threshold := pol.HighRiskThreshold
	if threshold == 0 {
		threshold = defaultThreshold
	}

	for _, e := range events {
		if e.RiskScore >= threshold {
			return Decision{
				ShouldBlock: true,
				Reason:      fmt.Sprintf("high risk event %s (%v >= %v)", e.ActivityType, e.RiskScore, threshold),
			}
		}
	}

	return Decision{ShouldBlock: false}
}
