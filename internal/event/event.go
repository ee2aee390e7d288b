// Package event defines the canonical ActivityEvent record produced by every
// collector and consumed by the offline queue, the risk evaluator, and the
// activity client.
package event

import (
	"encoding/json"
	"time"
)

// ActivityType enumerates the recognized event kinds. It is a plain string
// on the wire, not an integer, so it round-trips through JSON without a
// custom marshaler.
type ActivityType string

const (
	ProcessSnapshot          ActivityType = "PROCESS_SNAPSHOT"
	ActiveWindowChange       ActivityType = "ACTIVE_WINDOW_CHANGE"
	UserIdle                 ActivityType = "USER_IDLE"
	UserActive               ActivityType = "USER_ACTIVE"
	BrowserVisit             ActivityType = "BROWSER_VISIT"
	SystemBoot               ActivityType = "SYSTEM_BOOT"
	WorkstationBlockEnforced ActivityType = "WORKSTATION_BLOCK_ENFORCED"
)

// ActivityEvent is one observation. A collector, the queue, and the
// activity client all serialize this same shape.
type ActivityEvent struct {
	ComputerID   int64          `json:"computer_id"`
	ActivityType ActivityType   `json:"activity_type"`
	Timestamp    string         `json:"timestamp"`
	Details      map[string]any `json:"details"`
	DurationMs   *int64         `json:"duration_ms"`
	URL          string         `json:"url"`
	ProcessName  string         `json:"process_name"`
	IsBlocked    bool           `json:"is_blocked"`
	RiskScore    float64        `json:"risk_score"`
	Synced       bool           `json:"synced"`
}

// NowISO returns the current UTC time as millisecond-precision ISO-8601
// with a literal "Z" suffix.
func NowISO() string {
	return FormatISO(time.Now().UTC())
}

// FormatISO renders t (assumed UTC) the same way NowISO does, for
// collectors that already have a timestamp in hand (e.g. a DB row).
func FormatISO(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// New constructs an ActivityEvent with the current timestamp and an
// initialized, never-nil Details map.
func New(computerID int64, activityType ActivityType) *ActivityEvent {
	return &ActivityEvent{
		ComputerID:   computerID,
		ActivityType: activityType,
		Timestamp:    NowISO(),
		Details:      map[string]any{},
	}
}

// ToJSON serializes the event for local persistence (the offline queue's
// payload column). It includes the synced field, matching the original
// agent's on-disk format, even though the queue itself does not consult it
// for delivery tracking.
func (e *ActivityEvent) ToJSON() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FromJSON parses a payload previously produced by ToJSON.
func FromJSON(payload string) (*ActivityEvent, error) {
	var e ActivityEvent
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return nil, err
	}
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	return &e, nil
}

// WirePayload is the outer record sent to the activity sink: details is
// nested as a JSON string rather than a nested object, and Synced is always
// forced true regardless of the event's own synced field.
type WirePayload struct {
	ID           int64   `json:"id"`
	ComputerID   int64   `json:"computer_id"`
	Timestamp    string  `json:"timestamp"`
	ActivityType string  `json:"activity_type"`
	Details      string  `json:"details"`
	DurationMs   int64   `json:"duration_ms"`
	URL          string  `json:"url"`
	ProcessName  string  `json:"process_name"`
	IsBlocked    bool    `json:"is_blocked"`
	RiskScore    float64 `json:"risk_score"`
	Synced       bool    `json:"Synced"`
}

// ToWirePayload converts the event into the shape the activity sink
// expects. A nil DurationMs is emitted as 0.
func (e *ActivityEvent) ToWirePayload() (*WirePayload, error) {
	detailsJSON, err := json.Marshal(e.Details)
	if err != nil {
		return nil, err
	}
	var duration int64
	if e.DurationMs != nil {
		duration = *e.DurationMs
	}
	return &WirePayload{
		ComputerID:   e.ComputerID,
		Timestamp:    e.Timestamp,
		ActivityType: string(e.ActivityType),
		Details:      string(detailsJSON),
		DurationMs:   duration,
		URL:          e.URL,
		ProcessName:  e.ProcessName,
		IsBlocked:    e.IsBlocked,
		RiskScore:    e.RiskScore,
		Synced:       true,
	}, nil
}
