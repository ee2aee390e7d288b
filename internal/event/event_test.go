package event

import (
	"encoding/json"
	"testing"
)

func TestJSONRoundTrip(t *testing.T) {
	dur := int64(4500)
	e := &ActivityEvent{
		ComputerID:   7,
		ActivityType: BrowserVisit,
		Timestamp:    "2026-07-29T10:00:00.000Z",
		Details:      map[string]any{"title": "example", "n": float64(3)},
		DurationMs:   &dur,
		URL:          "https://example.com",
		ProcessName:  "chrome.exe",
		IsBlocked:    false,
		RiskScore:    2,
		Synced:       false,
	}

	payload, err := e.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	got, err := FromJSON(payload)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}

	if got.ComputerID != e.ComputerID || got.ActivityType != e.ActivityType || got.Timestamp != e.Timestamp {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.DurationMs == nil || *got.DurationMs != dur {
		t.Errorf("DurationMs = %v, want %d", got.DurationMs, dur)
	}
	if got.Details["title"] != "example" {
		t.Errorf("Details[title] = %v, want example", got.Details["title"])
	}
}

func TestFromJSONDefaultsNilDetails(t *testing.T) {
	got, err := FromJSON(`{"computer_id":1,"activity_type":"USER_IDLE","timestamp":"2026-07-29T10:00:00.000Z"}`)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if got.Details == nil {
		t.Error("Details should be initialized, not nil")
	}
}

func TestWirePayloadNestsDetailsAsStringAndForcesSynced(t *testing.T) {
	e := New(1, ProcessSnapshot)
	e.Details["count"] = 3
	e.Synced = false

	wire, err := e.ToWirePayload()
	if err != nil {
		t.Fatalf("ToWirePayload: %v", err)
	}

	if !wire.Synced {
		t.Error("wire payload must force Synced=true regardless of the event's own synced field")
	}
	if wire.DurationMs != 0 {
		t.Errorf("DurationMs = %d, want 0 for nil duration", wire.DurationMs)
	}

	var decodedDetails map[string]any
	if err := json.Unmarshal([]byte(wire.Details), &decodedDetails); err != nil {
		t.Fatalf("details is not valid nested JSON: %v", err)
	}
	if decodedDetails["count"] != float64(3) {
		t.Errorf("decoded details[count] = %v, want 3", decodedDetails["count"])
	}

	b, err := json.Marshal(wire)
	if err != nil {
		t.Fatalf("marshal wire payload: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal wire payload: %v", err)
	}
	if _, ok := raw["Synced"]; !ok {
		t.Error(`wire payload must expose capitalized "Synced" field`)
	}
}

func TestNewInitializesDetails(t *testing.T) {
	e := New(1, SystemBoot)
	if e.Details == nil {
		t.Fatal("New should initialize Details")
	}
	if e.Timestamp == "" {
		t.Error("New should set Timestamp")
	}
}
