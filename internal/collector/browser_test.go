package collector

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/sentrywatch/endpointagent/internal/policy"
)

// Chromium timestamps are microseconds since 1601-01-01 UTC: subtract
// the 1601->1970 offset, then divide by 1e6.
func TestWebkitTimestampConversion(t *testing.T) {
	got := webkitTimestampToISO(13346208000000000)
	want := "2023-12-05T00:00:00.000Z"
	if got != want {
		t.Errorf("webkitTimestampToISO(13346208000000000) = %q, want %q", got, want)
	}
	if got := webkitTimestampToISO(13346208000123456); got != "2023-12-05T00:00:00.123Z" {
		t.Errorf("millisecond truncation: got %q, want 2023-12-05T00:00:00.123Z", got)
	}
}

func TestFirefoxTimestampConversion(t *testing.T) {
	// 1700000000 seconds since epoch, expressed in microseconds.
	got := firefoxTimestampToISO(1700000000 * 1_000_000)
	want := "2023-11-14T22:13:20.000Z"
	if got != want {
		t.Errorf("firefoxTimestampToISO = %q, want %q", got, want)
	}
}

func TestIsSuspiciousURL(t *testing.T) {
	cases := map[string]bool{
		"https://example.com/free-crypto-giveaway": true,
		"http://evil.ru/login":                     true,
		"https://bank.example.com/account":         false,
		"https://CredentialVault.example.com/x":    true,
	}
	for url, want := range cases {
		if got := isSuspiciousURL(url); got != want {
			t.Errorf("isSuspiciousURL(%q) = %v, want %v", url, got, want)
		}
	}
}

func newChromiumHistoryDB(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE urls (url TEXT, title TEXT, visit_count INTEGER, last_visit_time INTEGER)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	_, err = db.Exec(`INSERT INTO urls (url, title, visit_count, last_visit_time) VALUES
		('https://example.com', 'Example', 3, 13350000000000000),
		('http://evil.ru/login', 'Login', 1, 13350000100000000)`)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestCollectChromiumRespectsWatermarkAndRiskScoring(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "History")
	newChromiumHistoryDB(t, dbPath)

	c := NewBrowserHistoryCollector(1, nil)

	events, err := c.collectChromium("chrome", dbPath)
	if err != nil {
		t.Fatalf("collectChromium: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].URL != "https://example.com" || events[0].RiskScore != 2 {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].URL != "http://evil.ru/login" || events[1].RiskScore != 88 || !events[1].IsBlocked {
		t.Errorf("second event = %+v", events[1])
	}

	// A second pass with the watermark already advanced must return nothing.
	events, err = c.collectChromium("chrome", dbPath)
	if err != nil {
		t.Fatalf("collectChromium (second pass): %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no new events after watermark advance, got %d", len(events))
	}
}

func TestCollectReturnsNilWhenDisabled(t *testing.T) {
	c := NewBrowserHistoryCollector(1, nil)
	pol := policy.Default()
	pol.EnableBrowserCollection = false

	events, err := c.Collect(pol)
	if err != nil || events != nil {
		t.Errorf("Collect with collection disabled = (%v, %v), want (nil, nil)", events, err)
	}
}

func TestCollectMissingBrowserProfileIsNotFatal(t *testing.T) {
	c := NewBrowserHistoryCollector(1, nil)
	pol := policy.Default()
	pol.Browsers = []string{"chrome"}

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	events, err := c.Collect(pol)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if events != nil {
		t.Errorf("expected no events for missing profile, got %v", events)
	}
}
