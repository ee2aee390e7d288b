package collector

import (
	"sort"
	"strings"

	gopsprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/sentrywatch/endpointagent/internal/event"
	"github.com/sentrywatch/endpointagent/internal/policy"
)

// ProcessCollector enumerates running processes, keeps the top
// process_snapshot_limit by CPU descending, and flags suspicious process
// names.
type ProcessCollector struct {
	ComputerID int64
	UserID     *int64
}

// NewProcessCollector returns a ProcessCollector tagging every emitted
// event with computerID/userID.
func NewProcessCollector(computerID int64, userID *int64) *ProcessCollector {
	return &ProcessCollector{ComputerID: computerID, UserID: userID}
}

type processSample struct {
	pid        int32
	name       string
	username   string
	cpuPercent float64
	rss        uint64
	cmdline    []string
	createTime int64
}

// Collect returns one PROCESS_SNAPSHOT event per process, sorted by CPU
// descending and capped at policy.ProcessSnapshotLimit (default 50).
func (c *ProcessCollector) Collect(pol policy.Policy) ([]*event.ActivityEvent, error) {
	if !pol.EnableProcessCollection {
		return nil, nil
	}

	limit := pol.ProcessSnapshotLimit
	if limit <= 0 {
		limit = 50
	}

	procs, err := gopsprocess.Processes()
	if err != nil {
		return nil, err
	}

	samples := make([]processSample, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		cpuPct, _ := p.CPUPercent()
		username, _ := p.Username()
		cmdline, _ := p.CmdlineSlice()
		createTime, _ := p.CreateTime()
		rss := uint64(0)
		if mem, err := p.MemoryInfo(); err == nil && mem != nil {
			rss = mem.RSS
		}
		samples = append(samples, processSample{
			pid:        p.Pid,
			name:       name,
			username:   username,
			cpuPercent: cpuPct,
			rss:        rss,
			cmdline:    cmdline,
			createTime: createTime,
		})
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].cpuPercent > samples[j].cpuPercent
	})
	if len(samples) > limit {
		samples = samples[:limit]
	}

	now := event.NowISO()
	events := make([]*event.ActivityEvent, 0, len(samples))
	for _, s := range samples {
		suspicious := isSuspiciousProcessName(s.name)
		risk := 5.0
		if suspicious {
			risk = 90.0
		}

		e := event.New(c.ComputerID, event.ProcessSnapshot)
		e.Timestamp = now
		e.ProcessName = s.name
		e.RiskScore = risk
		e.IsBlocked = risk >= 85
		e.Details = map[string]any{
			"pid":           s.pid,
			"user":          s.username,
			"cpu_percent":   s.cpuPercent,
			"rss":           s.rss,
			"cmdline":       s.cmdline,
			"started_at":    s.createTime,
			"agent_user_id": c.UserID,
		}
		events = append(events, e)
	}

	return events, nil
}

func isSuspiciousProcessName(name string) bool {
	lower := strings.ToLower(name)
	for _, token := range riskyProcessTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}
