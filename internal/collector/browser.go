package collector

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sentrywatch/endpointagent/internal/event"
	"github.com/sentrywatch/endpointagent/internal/policy"
)

// webkitEpochOffsetMicros is the number of microseconds between the
// Windows/Chromium epoch (1601-01-01 UTC) and the Unix epoch.
const webkitEpochOffsetMicros = 11644473600000000

// BrowserHistoryCollector polls each configured browser's history database
// for rows newer than a per-browser watermark, converting browser-specific
// timestamp encodings to millisecond-precision UTC ISO-8601.
// The watermark lives only for the process lifetime of this collector
// instance (constructed once by the engine at bootstrap).
type BrowserHistoryCollector struct {
	ComputerID int64
	UserID     *int64

	mu        sync.Mutex
	watermark map[string]int64
}

// NewBrowserHistoryCollector returns a BrowserHistoryCollector tagging
// every emitted event with computerID/userID.
func NewBrowserHistoryCollector(computerID int64, userID *int64) *BrowserHistoryCollector {
	return &BrowserHistoryCollector{
		ComputerID: computerID,
		UserID:     userID,
		watermark:  map[string]int64{},
	}
}

func (c *BrowserHistoryCollector) Collect(pol policy.Policy) ([]*event.ActivityEvent, error) {
	if !pol.EnableBrowserCollection {
		return nil, nil
	}

	browsers := pol.Browsers
	if len(browsers) == 0 {
		browsers = []string{"chrome", "edge", "firefox"}
	}

	var events []*event.ActivityEvent
	for _, b := range browsers {
		browser := strings.ToLower(strings.TrimSpace(b))
		got, err := c.collectBrowser(browser)
		if err != nil {
			// One browser's failure (missing profile, locked file, unknown
			// schema) must never affect the others.
			log.Printf("browser history collector error for %s: %v", browser, err)
			continue
		}
		events = append(events, got...)
	}
	return events, nil
}

func (c *BrowserHistoryCollector) collectBrowser(browser string) ([]*event.ActivityEvent, error) {
	dbPath, ok := browserHistoryPath(browser)
	if !ok || dbPath == "" {
		return nil, nil
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, nil
	}

	// The live history DB is usually locked by the running browser process;
	// copy it to a scratch file first.
	scratch, err := copyToScratch(dbPath)
	if err != nil {
		return nil, fmt.Errorf("copy history db: %w", err)
	}
	defer os.Remove(scratch)

	switch browser {
	case "chrome", "edge":
		return c.collectChromium(browser, scratch)
	case "firefox":
		return c.collectFirefox(browser, scratch)
	default:
		return nil, nil
	}
}

func (c *BrowserHistoryCollector) collectChromium(browser, dbFile string) ([]*event.ActivityEvent, error) {
	db, err := sql.Open("sqlite", "file:"+dbFile+"?mode=ro")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	lastSeen := c.getWatermark(browser)
	rows, err := db.Query(
		`SELECT url, title, visit_count, last_visit_time FROM urls WHERE last_visit_time > ? ORDER BY last_visit_time ASC LIMIT 50`,
		lastSeen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	maxSeen := lastSeen
	var events []*event.ActivityEvent
	for rows.Next() {
		var url, title string
		var visitCount int64
		var lastVisitTime int64
		if err := rows.Scan(&url, &title, &visitCount, &lastVisitTime); err != nil {
			return nil, err
		}
		if url == "" {
			continue
		}
		if lastVisitTime > maxSeen {
			maxSeen = lastVisitTime
		}
		events = append(events, c.buildVisitEvent(browser, url, title, visitCount, webkitTimestampToISO(lastVisitTime)))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	c.setWatermark(browser, maxSeen)
	return events, nil
}

func (c *BrowserHistoryCollector) collectFirefox(browser, dbFile string) ([]*event.ActivityEvent, error) {
	db, err := sql.Open("sqlite", "file:"+dbFile+"?mode=ro")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	lastSeen := c.getWatermark(browser)
	rows, err := db.Query(
		`SELECT url, title, visit_count, last_visit_date FROM moz_places WHERE last_visit_date IS NOT NULL AND last_visit_date > ? ORDER BY last_visit_date ASC LIMIT 50`,
		lastSeen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	maxSeen := lastSeen
	var events []*event.ActivityEvent
	for rows.Next() {
		var url, title string
		var visitCount int64
		var lastVisitDate int64
		if err := rows.Scan(&url, &title, &visitCount, &lastVisitDate); err != nil {
			return nil, err
		}
		if url == "" {
			continue
		}
		if lastVisitDate > maxSeen {
			maxSeen = lastVisitDate
		}
		events = append(events, c.buildVisitEvent(browser, url, title, visitCount, firefoxTimestampToISO(lastVisitDate)))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	c.setWatermark(browser, maxSeen)
	return events, nil
}

func (c *BrowserHistoryCollector) buildVisitEvent(browser, url, title string, visitCount int64, ts string) *event.ActivityEvent {
	risk := 2.0
	if isSuspiciousURL(url) {
		risk = 88.0
	}
	e := event.New(c.ComputerID, event.BrowserVisit)
	e.Timestamp = ts
	e.URL = url
	e.RiskScore = risk
	e.IsBlocked = risk >= 85
	e.Details = map[string]any{
		"browser":       browser,
		"title":         title,
		"visit_count":   visitCount,
		"agent_user_id": c.UserID,
	}
	return e
}

func (c *BrowserHistoryCollector) getWatermark(browser string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watermark[browser]
}

func (c *BrowserHistoryCollector) setWatermark(browser string, v int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watermark[browser] = v
}

func isSuspiciousURL(url string) bool {
	lower := strings.ToLower(url)
	for _, token := range suspiciousURLTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// webkitTimestampToISO converts a Chromium/WebKit timestamp (microseconds
// since 1601-01-01 UTC) to millisecond-precision ISO-8601.
func webkitTimestampToISO(value int64) string {
	unixMicros := value - webkitEpochOffsetMicros
	return event.FormatISO(time.UnixMicro(unixMicros).UTC())
}

// firefoxTimestampToISO converts a Firefox timestamp (microseconds since
// the Unix epoch) to millisecond-precision ISO-8601.
func firefoxTimestampToISO(value int64) string {
	return event.FormatISO(time.UnixMicro(value).UTC())
}

func copyToScratch(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.CreateTemp("", "agent_hist_*"+filepath.Ext(src))
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

// browserHistoryPath resolves the platform-specific history DB path for
// browser. Firefox resolves to the most-recently-modified profile's
// places.sqlite.
func browserHistoryPath(browser string) (string, bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}

	switch runtime.GOOS {
	case "windows":
		local := os.Getenv("LOCALAPPDATA")
		roaming := os.Getenv("APPDATA")
		switch browser {
		case "chrome":
			return filepath.Join(local, "Google", "Chrome", "User Data", "Default", "History"), true
		case "edge":
			return filepath.Join(local, "Microsoft", "Edge", "User Data", "Default", "History"), true
		case "firefox":
			return latestFirefoxPlaces(filepath.Join(roaming, "Mozilla", "Firefox", "Profiles"))
		}
	case "darwin":
		switch browser {
		case "chrome":
			return filepath.Join(home, "Library", "Application Support", "Google", "Chrome", "Default", "History"), true
		case "edge":
			return filepath.Join(home, "Library", "Application Support", "Microsoft Edge", "Default", "History"), true
		case "firefox":
			return latestFirefoxPlaces(filepath.Join(home, "Library", "Application Support", "Firefox", "Profiles"))
		}
	default:
		switch browser {
		case "chrome":
			return filepath.Join(home, ".config", "google-chrome", "Default", "History"), true
		case "edge":
			return filepath.Join(home, ".config", "microsoft-edge", "Default", "History"), true
		case "firefox":
			return latestFirefoxPlaces(filepath.Join(home, ".mozilla", "firefox"))
		}
	}
	return "", false
}

// latestFirefoxPlaces returns the most-recently-modified *.default*/
// places.sqlite under profilesRoot.
func latestFirefoxPlaces(profilesRoot string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(profilesRoot, "*.default*", "places.sqlite"))
	if err != nil || len(matches) == 0 {
		return "", false
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	candidates := make([]candidate, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{path: m, modTime: info.ModTime()})
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})
	return candidates[0].path, true
}
