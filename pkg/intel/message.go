package intel

import (
	"strings"
	"sync"
	"time"
)

// SystemUser is the sender name EVE uses for channel notices.
// Older clients log it with a dash.
var systemUsers = map[string]struct{}{
	"EVE System": {},
	"EVE-System": {},
}

// IsSystemUser reports whether user is the game's notice sender.
func IsSystemUser(user string) bool {
	_, ok := systemUsers[user]
	return ok
}

// Message is one parsed chat-log entry. A message is built by its log
// worker, handed to the shared annotation queue, and only then read by
// everyone else; after the final update event it is immutable in
// practice. The mutex covers the body and system list for readers that
// race the annotation queue.
type Message struct {
	Room      string
	User      string
	PlainText string
	UpperText string
	Posted    time.Time // local time, for display
	UTC       time.Time // as logged
	Status    Status

	mu      sync.Mutex
	body    *Body
	systems []string
}

// NewMessage builds a message around plain text posted at the given
// UTC instant.
func NewMessage(room, user, text string, utc time.Time, status Status) *Message {
	return &Message{
		Room:      room,
		User:      user,
		PlainText: text,
		UpperText: strings.ToUpper(text),
		Posted:    utc.Local(),
		UTC:       utc,
		Status:    status,
		body:      NewBody(text),
	}
}

// Body returns the message's rich-text body. The caller owning the
// annotation step may mutate it; everyone else should only render it.
func (m *Message) Body() *Body {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.body
}

// Markup renders the annotated body.
func (m *Message) Markup() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.body.Markup()
}

// AddSystem appends a system name to the message's ordered system
// list, skipping names already present.
func (m *Message) AddSystem(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.systems {
		if s == name {
			return
		}
	}
	m.systems = append(m.systems, name)
}

// Systems returns a copy of the ordered system names mentioned by the
// message.
func (m *Message) Systems() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.systems))
	copy(out, m.systems)
	return out
}

// InheritSystems copies the systems of another message, used when a
// bare "clear" follows a status request. Existing entries are kept.
func (m *Message) InheritSystems(from *Message) {
	for _, s := range from.Systems() {
		m.AddSystem(s)
	}
}

// DedupKey is the identity used by the deduplication registry:
// the concatenation of plain text, user and room. Timestamps are
// excluded; the registry applies its own proximity window. The key is
// deliberately undelimited to match observed behaviour, which leaves a
// theoretical collision between field boundaries.
func (m *Message) DedupKey() string {
	return m.PlainText + m.User + m.Room
}
