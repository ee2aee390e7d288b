//go:build darwin

package capability

import (
	"regexp"
	"strconv"
	"strings"
)

var hidIdleTimeRe = regexp.MustCompile(`"HIDIdleTime"\s*=\s*(\d+)`)

func idleTimeMs() (int64, bool) {
	out, ok := runCapture(2, "ioreg", "-c", "IOHIDSystem")
	if !ok {
		return 0, false
	}
	m := hidIdleTimeRe.FindStringSubmatch(out)
	if m == nil {
		return 0, false
	}
	nanos, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	ms := nanos / 1_000_000
	if ms < 0 {
		ms = 0
	}
	return ms, true
}

func activeWindowTitle() (string, bool) {
	script := `tell application "System Events"
set p to first process whose frontmost is true
set appName to name of p
try
set winName to name of front window of p
on error
set winName to ""
end try
if winName is "" then
return appName
else
return appName & " — " & winName
end if
end tell`
	out, ok := runCapture(3, "osascript", "-e", script)
	if !ok {
		return "", false
	}
	out = strings.TrimSpace(out)
	if out == "" || strings.Contains(strings.ToLower(out), "not authorized") {
		return "", false
	}
	return out, true
}

const cgSessionPath = "/System/Library/CoreServices/Menu Extras/User.menu/Contents/Resources/CGSession"

func lockWorkstation() bool {
	if fileExists(cgSessionPath) && runOK(3, cgSessionPath, "-suspend") {
		return true
	}
	// Fallback: sleep the display. On hosts with password-on-wake enabled,
	// this effectively locks the session.
	return runOK(3, "pmset", "displaysleepnow")
}

func probeIdleSupported() bool {
	return commandExists("ioreg")
}

func probeWindowSupported() bool {
	return commandExists("osascript")
}

func probeLockSupported() bool {
	return fileExists(cgSessionPath) || commandExists("pmset")
}
