package log

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"
)

func TestNewEventDefaults(t *testing.T) {
	start := time.Now().UnixMilli()
	evt := NewEvent(EventTypeMessageAdded, "delve.imperium", "Bob")

	if evt.Version != EventVersion {
		t.Fatalf("expected version %d, got %d", EventVersion, evt.Version)
	}
	if evt.TimestampMs < start {
		t.Fatalf("expected TimestampMs >= %d, got %d", start, evt.TimestampMs)
	}
	if evt.EventID == "" || !strings.HasPrefix(evt.EventID, "evt-") {
		t.Fatalf("expected evt- prefixed event id, got %q", evt.EventID)
	}
	if evt.Type != EventTypeMessageAdded {
		t.Fatalf("expected type %q, got %q", EventTypeMessageAdded, evt.Type)
	}
	if evt.Room != "delve.imperium" || evt.User != "Bob" {
		t.Fatalf("expected room/user, got %q/%q", evt.Room, evt.User)
	}
}

func TestEventLogSchemaFields(t *testing.T) {
	dir := t.TempDir()
	logger := NewEventLog(dir)

	evt := Event{
		Type:   EventTypeSystemStatus,
		System: "B-7DFU",
		Status: "alarm",
		Room:   "delve.imperium",
	}

	if err := logger.Log(evt); err != nil {
		t.Fatalf("log event: %v", err)
	}

	payload, err := os.ReadFile(dir + "/events.jsonl")
	if err != nil {
		t.Fatalf("read events.jsonl: %v", err)
	}
	line := strings.TrimSpace(string(payload))
	if line == "" {
		t.Fatalf("expected one jsonl line")
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}

	for _, key := range []string{"v", "ts_ms", "event_id", "type", "room", "system", "status"} {
		if _, ok := got[key]; !ok {
			t.Fatalf("missing required field %q in %v", key, got)
		}
	}
	// Unset optional fields stay out of the line.
	for _, key := range []string{"user", "character", "text", "error"} {
		if _, ok := got[key]; ok {
			t.Fatalf("unexpected field %q in %v", key, got)
		}
	}

	if v, ok := got["v"].(float64); !ok || int(v) != EventVersion {
		t.Fatalf("expected v=%d, got %v", EventVersion, got["v"])
	}
	if id, ok := got["event_id"].(string); !ok || !strings.HasPrefix(id, "evt-") {
		t.Fatalf("expected evt- prefixed event_id, got %v", got["event_id"])
	}
}

func TestEventLogAppends(t *testing.T) {
	dir := t.TempDir()
	logger := NewEventLog(dir)

	for i := 0; i < 3; i++ {
		if err := logger.Log(NewEvent(EventTypeMessageAdded, "intel", "Bob")); err != nil {
			t.Fatalf("log event %d: %v", i, err)
		}
	}

	payload, err := os.ReadFile(dir + "/events.jsonl")
	if err != nil {
		t.Fatalf("read events.jsonl: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
}
