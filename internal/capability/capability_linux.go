//go:build linux

package capability

import (
	"regexp"
	"strconv"
	"strings"
)

func idleTimeMs() (int64, bool) {
	for _, c := range [][]string{{"xprintidle"}, {"xssstate", "-i"}} {
		out, ok := runCapture(2, c[0], c[1:]...)
		if !ok || out == "" {
			continue
		}
		ms, err := strconv.ParseFloat(out, 64)
		if err != nil {
			continue
		}
		if ms < 0 {
			ms = 0
		}
		return int64(ms), true
	}
	return 0, false
}

var xpropWindowIDRe = regexp.MustCompile(`window id # (0x[0-9a-fA-F]+)`)
var xpropQuotedRe = regexp.MustCompile(`=\s*"(.+)"`)

func activeWindowTitle() (string, bool) {
	if out, ok := runCapture(2, "xdotool", "getactivewindow", "getwindowname"); ok && out != "" {
		return out, true
	}

	root, ok := runCapture(2, "xprop", "-root", "_NET_ACTIVE_WINDOW")
	if !ok {
		return "", false
	}
	m := xpropWindowIDRe.FindStringSubmatch(root)
	if m == nil {
		return "", false
	}
	props, ok := runCapture(2, "xprop", "-id", m[1], "_NET_WM_NAME", "WM_NAME")
	if !ok {
		return "", false
	}
	q := xpropQuotedRe.FindStringSubmatch(props)
	if q == nil {
		return "", false
	}
	title := strings.TrimSpace(q[1])
	if title == "" {
		return "", false
	}
	return title, true
}

func lockWorkstation() bool {
	candidates := [][]string{
		{"loginctl", "lock-session"},
		{"gnome-screensaver-command", "-l"},
		{"dm-tool", "lock"},
		{"qdbus", "org.freedesktop.ScreenSaver", "/ScreenSaver", "Lock"},
		{"qdbus-qt5", "org.freedesktop.ScreenSaver", "/ScreenSaver", "Lock"},
		{"qdbus6", "org.freedesktop.ScreenSaver", "/ScreenSaver", "Lock"},
	}
	for _, c := range candidates {
		if commandExists(c[0]) && runOK(3, c[0], c[1:]...) {
			return true
		}
	}
	return false
}

func probeIdleSupported() bool {
	return commandExists("xprintidle") || commandExists("xssstate")
}

func probeWindowSupported() bool {
	return commandExists("xdotool") || commandExists("xprop")
}

func probeLockSupported() bool {
	for _, c := range []string{"loginctl", "gnome-screensaver-command", "dm-tool", "qdbus", "qdbus-qt5", "qdbus6"} {
		if commandExists(c) {
			return true
		}
	}
	return false
}
