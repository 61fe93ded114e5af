// Package dedup guards against the same physical chat line being
// ingested twice, e.g. two game clients logging the same room.
package dedup

import (
	"sync"
	"time"

	"github.com/coldwine/intelwatch/pkg/intel"
)

const (
	// Window is how close two timestamps of an identical line must be
	// to count as the same observation. Identical text re-posted later
	// is a new event.
	Window = time.Second

	// Retention bounds how long an entry is remembered, by wall clock.
	Retention = 1200 * time.Second
)

type entry struct {
	posted time.Time // message timestamp, compared against Window
	seenAt time.Time // wall time of registration, swept by Retention
}

// Registry is the process-wide duplicate gate shared by all log
// workers. One coarse lock is enough: contention is human chat
// cadence.
type Registry struct {
	mu   sync.Mutex
	seen map[string]entry
	now  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		seen: make(map[string]entry),
		now:  time.Now,
	}
}

// Contains reports whether the registry already holds an observation
// of this message within the proximity window.
func (r *Registry) Contains(m *intel.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contains(m)
}

func (r *Registry) contains(m *intel.Message) bool {
	e, ok := r.seen[m.DedupKey()]
	if !ok {
		return false
	}
	d := m.UTC.Sub(e.posted)
	if d < 0 {
		d = -d
	}
	return d <= Window
}

// Add registers the message unless it is a duplicate. It returns false
// when the message was already known (the caller drops it). Each call
// also sweeps entries past the retention window.
func (r *Registry) Add(m *intel.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for key, e := range r.seen {
		if now.Sub(e.seenAt) > Retention {
			delete(r.seen, key)
		}
	}

	if r.contains(m) {
		return false
	}
	r.seen[m.DedupKey()] = entry{posted: m.UTC, seenAt: now}
	return true
}

// Len returns the current number of remembered entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}
