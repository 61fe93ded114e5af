// Package feed consumes classified messages: it advances the region
// graph, persists history, appends to the event log, and prints the
// live intel feed.
package feed

import (
	"fmt"
	"io"
	stdlog "log"
	"sync"
	"time"

	"github.com/coldwine/intelwatch/internal/chat"
	"github.com/coldwine/intelwatch/internal/log"
	"github.com/coldwine/intelwatch/internal/storage"
	"github.com/coldwine/intelwatch/internal/universe"
	"github.com/coldwine/intelwatch/pkg/intel"
)

// Options configures the sink. Store and Events are optional; a nil
// Out suppresses the printed feed.
type Options struct {
	Store         *storage.Store
	Events        *log.EventLog
	Out           io.Writer
	AlarmDistance int
}

// Sink implements the worker sink over the region graph.
type Sink struct {
	settings      *chat.Settings
	store         *storage.Store
	events        *log.EventLog
	out           io.Writer
	alarmDistance int
	now           func() time.Time

	mu sync.Mutex
}

// New builds a sink around the shared settings (the graph source).
func New(settings *chat.Settings, opts Options) *Sink {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	return &Sink{
		settings:      settings,
		store:         opts.Store,
		events:        opts.Events,
		out:           out,
		alarmDistance: opts.AlarmDistance,
		now:           time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (s *Sink) SetClock(now func() time.Time) { s.now = now }

// MessageAdded handles a freshly classified message: state transition,
// feed line, and proximity alert.
func (s *Sink) MessageAdded(m *intel.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	graph := s.settings.Graph()
	changed := graph.Apply(m, s.now())

	fmt.Fprintf(s.out, "%s [%s] %s> %s (%s)\n",
		m.UTC.Format("15:04:05"), m.Room, m.User, m.PlainText, m.Status)
	s.alert(graph, m)
	s.logEvent(log.EventTypeMessageAdded, m)
	s.logTransitions(m.Room, changed)
}

// MessageUpdated runs after annotation; inherited or newly linked
// systems get their transition here, and the finished message is
// persisted.
func (s *Sink) MessageUpdated(m *intel.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	graph := s.settings.Graph()
	changed := graph.Apply(m, s.now())

	if s.store != nil {
		if err := s.persist(graph, m); err != nil {
			stdlog.Printf("feed: persist failed: %v", err)
		}
	}
	s.logEvent(log.EventTypeMessageUpdated, m)
	s.logTransitions(m.Room, changed)
}

// CharacterDiscovered records a monitored character coming online.
func (s *Sink) CharacterDiscovered(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintf(s.out, "watching character %s\n", name)
	if s.events != nil {
		evt := log.NewEvent(log.EventTypeCharacterDiscovered, "", "").WithCharacter(name)
		if err := s.events.Log(evt); err != nil {
			stdlog.Printf("feed: event log failed: %v", err)
		}
	}
}

// alert prints a warning when an alarm lands within range of a system
// holding a monitored character.
func (s *Sink) alert(graph *universe.Graph, m *intel.Message) {
	if m.Status != intel.StatusAlarm || s.alarmDistance < 0 {
		return
	}
	for _, name := range m.Systems() {
		hops, err := graph.Neighbours(name, s.alarmDistance)
		if err != nil {
			continue
		}
		for _, hop := range hops {
			for _, character := range hop.System.Located() {
				fmt.Fprintf(s.out, "ALERT %s: hostiles in %s, %d jumps from %s\n",
					character, name, hop.Distance, hop.System.Name)
			}
		}
	}
}

func (s *Sink) persist(graph *universe.Graph, m *intel.Message) error {
	if m.Status == intel.StatusLocation {
		for _, name := range m.Systems() {
			sys := graph.System(name)
			if sys == nil {
				continue
			}
			for _, character := range sys.Located() {
				if err := s.store.SaveLocation(character, sys.Name, m.UTC); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return s.store.SaveMessage(m)
}

// logTransitions records one system_status event per system whose
// persisted status actually changed.
func (s *Sink) logTransitions(room string, changed []*universe.System) {
	if s.events == nil {
		return
	}
	for _, sys := range changed {
		evt := log.NewEvent(log.EventTypeSystemStatus, room, "").
			WithSystem(sys.Name).
			WithStatus(sys.Status().String())
		if err := s.events.Log(evt); err != nil {
			stdlog.Printf("feed: event log failed: %v", err)
		}
	}
}

func (s *Sink) logEvent(eventType string, m *intel.Message) {
	if s.events == nil {
		return
	}
	evt := log.NewEvent(eventType, m.Room, m.User).
		WithStatus(m.Status.String()).
		WithText(m.PlainText)
	if systems := m.Systems(); len(systems) > 0 {
		evt = evt.WithSystem(systems[0])
	}
	if err := s.events.Log(evt); err != nil {
		stdlog.Printf("feed: event log failed: %v", err)
	}
}

var _ chat.Sink = (*Sink)(nil)
