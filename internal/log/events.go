package log

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventVersion is the current intel event schema version.
const EventVersion = 1

// Event captures one intel activity record.
type Event struct {
	Version     int    `json:"v"`        // schema version, always 1
	TimestampMs int64  `json:"ts_ms"`    // unix milliseconds
	EventID     string `json:"event_id"` // "evt-abc123"
	Type        string `json:"type"`     // "message_added", "worker_started", etc.

	Room      string `json:"room,omitempty"`
	User      string `json:"user,omitempty"`
	Character string `json:"character,omitempty"`
	System    string `json:"system,omitempty"`
	Status    string `json:"status,omitempty"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
}

// WithText sets the message text.
func (e Event) WithText(text string) Event {
	e.Text = text
	return e
}

// WithSystem sets the system name.
func (e Event) WithSystem(system string) Event {
	e.System = system
	return e
}

// WithStatus sets the classified status.
func (e Event) WithStatus(status string) Event {
	e.Status = status
	return e
}

// WithCharacter sets the character name.
func (e Event) WithCharacter(name string) Event {
	e.Character = name
	return e
}

// WithError sets the error field.
func (e Event) WithError(err string) Event {
	e.Error = err
	return e
}

// Event type constants.
const (
	EventTypeMessageAdded        = "message_added"
	EventTypeMessageUpdated      = "message_updated"
	EventTypeCharacterDiscovered = "character_discovered"
	EventTypeWorkerStarted       = "worker_started"
	EventTypeWorkerStopped       = "worker_stopped"
	EventTypeSystemStatus        = "system_status"
)

// GenerateEventID returns an evt- prefixed 8-hex identifier.
func GenerateEventID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		n := time.Now().UnixNano()
		buf[0] = byte(n)
		buf[1] = byte(n >> 8)
		buf[2] = byte(n >> 16)
		buf[3] = byte(n >> 24)
	}
	return "evt-" + hex.EncodeToString(buf)
}

// NewEvent creates an event with defaults filled in.
func NewEvent(eventType, room, user string) Event {
	return Event{
		Version:     EventVersion,
		TimestampMs: time.Now().UnixMilli(),
		EventID:     GenerateEventID(),
		Type:        eventType,
		Room:        room,
		User:        user,
	}
}

// EventLog writes append-only JSONL logs.
type EventLog struct {
	path string
	mu   sync.Mutex
}

func NewEventLog(logDir string) *EventLog {
	return &EventLog{path: filepath.Join(logDir, "events.jsonl")}
}

func (l *EventLog) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Version == 0 {
		event.Version = EventVersion
	}
	if event.TimestampMs == 0 {
		event.TimestampMs = time.Now().UnixMilli()
	}
	if event.EventID == "" {
		event.EventID = GenerateEventID()
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := file.Write(append(payload, '\n')); err != nil {
		return err
	}

	return nil
}
