//go:build windows

package capability

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// On Windows the primitives are implemented directly against the
// documented Win32 input/window/session APIs via golang.org/x/sys/windows
// rather than a shelled-out helper tool; this is the platform's native
// tier.

var (
	modUser32                = windows.NewLazySystemDLL("user32.dll")
	procGetLastInputInfo     = modUser32.NewProc("GetLastInputInfo")
	procGetForegroundWindow  = modUser32.NewProc("GetForegroundWindow")
	procGetWindowTextLengthW = modUser32.NewProc("GetWindowTextLengthW")
	procGetWindowTextW       = modUser32.NewProc("GetWindowTextW")
	procLockWorkStation      = modUser32.NewProc("LockWorkStation")
)

type lastInputInfo struct {
	cbSize uint32
	dwTime uint32
}

func idleTimeMs() (int64, bool) {
	var info lastInputInfo
	info.cbSize = uint32(unsafe.Sizeof(info))
	ret, _, _ := procGetLastInputInfo.Call(uintptr(unsafe.Pointer(&info)))
	if ret == 0 {
		return 0, false
	}
	tick := windows.GetTickCount64()
	elapsed := int64(tick) - int64(info.dwTime)
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed, true
}

func activeWindowTitle() (string, bool) {
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return "", false
	}
	length, _, _ := procGetWindowTextLengthW.Call(hwnd)
	if length <= 0 {
		return "", false
	}
	buf := make([]uint16, length+1)
	copied, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(length+1))
	if copied == 0 {
		return "", false
	}
	title := windows.UTF16ToString(buf)
	if title == "" {
		return "", false
	}
	return title, true
}

func lockWorkstation() bool {
	ret, _, _ := procLockWorkStation.Call()
	return ret != 0
}

func probeIdleSupported() bool   { return true }
func probeWindowSupported() bool { return true }
func probeLockSupported() bool   { return true }
