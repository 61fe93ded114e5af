// Package universe models the region map: named systems, symmetric
// gate adjacency, and the time-decaying alarm state per system.
package universe

import (
	"sort"
	"sync"
	"time"

	"github.com/coldwine/intelwatch/pkg/intel"
)

// System is one node of the region graph.
type System struct {
	Name string

	mu         sync.Mutex
	status     intel.Status
	lastAlarm  time.Time
	neighbours map[*System]struct{}
	located    map[string]struct{}
	messages   []*intel.Message
}

func newSystem(name string) *System {
	return &System{
		Name:       name,
		status:     intel.StatusUnknown,
		neighbours: make(map[*System]struct{}),
		located:    make(map[string]struct{}),
	}
}

// Status returns the system's persisted intel status.
func (s *System) Status() intel.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastAlarm returns the decay clock anchor and whether one is set.
func (s *System) LastAlarm() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAlarm, !s.lastAlarm.IsZero()
}

// SetStatus applies a status transition at the given instant. Only
// alarm, clear, was-alarmed and unknown persist; everything else
// (requests, location notices, KOS checks, sound tests) is
// informational and must never overwrite the map state, so a Local
// notice cannot wipe an active alarm.
func (s *System) SetStatus(status intel.Status, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch status {
	case intel.StatusAlarm, intel.StatusClear:
		// Clear reuses the anchor for its fade timer.
		s.lastAlarm = at
	case intel.StatusWasAlarmed:
	case intel.StatusUnknown:
		s.lastAlarm = time.Time{}
	default:
		return
	}
	s.status = status
}

// Elapsed returns how long the current status has been decaying.
// The bool is false when no decay clock is running.
func (s *System) Elapsed(now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastAlarm.IsZero() {
		return 0, false
	}
	return now.Sub(s.lastAlarm), true
}

// AddLocated records a character known to be in this system.
func (s *System) AddLocated(character string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.located[character] = struct{}{}
}

// RemoveLocated forgets a character's presence.
func (s *System) RemoveLocated(character string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.located, character)
}

// Located returns the characters currently placed in this system,
// sorted for stable display.
func (s *System) Located() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.located))
	for name := range s.located {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AddMessage appends a message that mentioned this system. The list is
// append-only here; pruning is the consumer's concern.
func (s *System) AddMessage(m *intel.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

// Messages returns a copy of the messages that mentioned this system.
func (s *System) Messages() []*intel.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*intel.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Neighbours returns the directly adjacent systems.
func (s *System) Neighbours() []*System {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*System, 0, len(s.neighbours))
	for n := range s.neighbours {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *System) hasNeighbour(o *System) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.neighbours[o]
	return ok
}

func (s *System) addNeighbour(o *System) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.neighbours[o] = struct{}{}
}
