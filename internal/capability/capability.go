// Package capability probes which host primitives (idle time, active
// window title, workstation lock) are available, and exposes them behind
// a single cross-platform API. Each primitive degrades to a sentinel value
// rather than erroring when unsupported, so a collector built on top of it
// never needs platform-specific error handling.
package capability

import (
	"log"
	"os"
	"runtime"
	"sync"
)

// Capabilities describes, once per process lifetime, which primitives this
// host supports. It reports support, not momentary success: a supported
// primitive can still return a sentinel on a given call (e.g. no foreground
// window at the instant of the call).
type Capabilities struct {
	Platform          string
	IdleTimeMs        bool
	ActiveWindowTitle bool
	LockWorkstation   bool
}

var (
	capsOnce sync.Once
	caps     Capabilities

	warnMu sync.Mutex
	warned = map[string]bool{}
)

// Current returns the memoized capability descriptor for this host.
func Current() Capabilities {
	capsOnce.Do(func() {
		caps = Capabilities{
			Platform:          platformKey(),
			IdleTimeMs:        probeIdleSupported(),
			ActiveWindowTitle: probeWindowSupported(),
			LockWorkstation:   probeLockSupported(),
		}
	})
	return caps
}

// warnOnce logs msg at most once per key, for the life of the process.
// Used so that a collector degrading to a no-op on an unsupported
// primitive logs exactly one line instead of one per tick.
func warnOnce(key, msg string, args ...any) {
	warnMu.Lock()
	defer warnMu.Unlock()
	if warned[key] {
		return
	}
	warned[key] = true
	log.Printf(msg, args...)
}

func platformKey() string {
	switch runtime.GOOS {
	case "windows":
		return "windows"
	case "darwin":
		return "macos"
	case "linux":
		return "linux"
	default:
		return runtime.GOOS
	}
}

// IdleTimeMs returns the number of milliseconds since the last user input,
// or 0 if idle time is unsupported or the probe failed.
func IdleTimeMs() int64 {
	v, ok := idleTimeMs()
	if !ok {
		return 0
	}
	return v
}

// ActiveWindowTitle returns the current foreground window title, or "" if
// unsupported or no window is focused.
func ActiveWindowTitle() string {
	v, ok := activeWindowTitle()
	if !ok {
		return ""
	}
	return v
}

// LockWorkstation attempts to lock the host session. It returns true only
// if an underlying OS mechanism reported success; callers must maintain
// their own virtual-block fallback for the false case.
func LockWorkstation() bool {
	ok := lockWorkstation()
	if !ok {
		warnOnce("lock_not_supported", "lock_workstation unavailable on this host (platform=%s)", platformKey())
	}
	return ok
}

// CurrentUsername returns the OS login name of the user running the agent.
func CurrentUsername() string {
	if u := os.Getenv("USERNAME"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}
