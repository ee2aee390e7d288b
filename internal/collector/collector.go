// Package collector implements the four pollers that turn host state into
// ActivityEvents: process snapshots, active-window transitions, idle-time
// edges, and browser history. Every collector satisfies the same
// single-method Collector interface so the runtime engine holds an ordered
// []Collector and never type-switches on the concrete variant.
package collector

import (
	"github.com/sentrywatch/endpointagent/internal/event"
	"github.com/sentrywatch/endpointagent/internal/policy"
)

// Collector turns one tick of host state into zero or more events. It must
// not block for longer than a few hundred milliseconds and must never
// propagate an error that would kill the caller's loop; internal failures
// are logged and yield an empty batch.
type Collector interface {
	Collect(pol policy.Policy) ([]*event.ActivityEvent, error)
}

// riskyProcessTokens are lowercase substrings that mark a process name as
// high risk.
var riskyProcessTokens = []string{"mimikatz", "keylogger", "miner", "torrent"}

// suspiciousURLTokens are lowercase substrings that mark a browser visit as
// high risk.
var suspiciousURLTokens = []string{"phish", "malware", "stealer", "credential", "free-crypto", ".ru/login"}
