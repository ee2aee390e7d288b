//go:build !windows && !darwin && !linux

package capability

func idleTimeMs() (int64, bool)         { return 0, false }
func activeWindowTitle() (string, bool) { return "", false }
func lockWorkstation() bool             { return false }

func probeIdleSupported() bool   { return false }
func probeWindowSupported() bool { return false }
func probeLockSupported() bool   { return false }
