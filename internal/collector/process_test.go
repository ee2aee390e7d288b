package collector

import (
	"testing"

	"github.com/sentrywatch/endpointagent/internal/policy"
)

func TestIsSuspiciousProcessName(t *testing.T) {
	cases := map[string]bool{
		"xmrig-miner":   true,
		"MIMIKATZ.exe":  true,
		"keylogger.bin": true,
		"utorrent":      true,
		"explorer.exe":  false,
		"bash":          false,
	}
	for name, want := range cases {
		if got := isSuspiciousProcessName(name); got != want {
			t.Errorf("isSuspiciousProcessName(%q) = %v, want %v", name, got, want)
		}
	}
}

// A process named "xmrig-miner" must score 90 and be blocked.
func TestSuspiciousProcessRiskScoring(t *testing.T) {
	suspicious := isSuspiciousProcessName("xmrig-miner")
	risk := 5.0
	if suspicious {
		risk = 90.0
	}
	if risk != 90 || !(risk >= 85) {
		t.Errorf("risk = %v, want 90 and >= 85", risk)
	}
}

func TestProcessCollectorDisabledByPolicy(t *testing.T) {
	c := NewProcessCollector(1, nil)
	pol := policy.Default()
	pol.EnableProcessCollection = false

	events, err := c.Collect(pol)
	if err != nil || events != nil {
		t.Errorf("Collect with process collection disabled = (%v, %v), want (nil, nil)", events, err)
	}
}
