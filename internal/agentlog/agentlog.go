// Package agentlog gates debug-level log lines behind the --log-level CLI
// flag. Everything else in this module logs through the standard logger
// directly; only lines that would be noisy on every tick go through Debugf.
package agentlog

import (
	"log"
	"strings"
	"sync/atomic"
)

var debugEnabled atomic.Bool

// SetLevel configures the process-wide verbosity from the --log-level flag
// value. Anything other than "DEBUG" (case-insensitive) suppresses Debugf.
func SetLevel(level string) {
	debugEnabled.Store(strings.EqualFold(strings.TrimSpace(level), "DEBUG"))
}

// DebugEnabled reports whether Debugf currently emits.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// Debugf logs through the standard logger when the level is DEBUG and is a
// no-op otherwise.
func Debugf(format string, args ...any) {
	if debugEnabled.Load() {
		log.Printf("DEBUG "+format, args...)
	}
}
