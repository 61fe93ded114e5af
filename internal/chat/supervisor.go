package chat

import (
	"context"
	"log"
	"sync"

	"github.com/coldwine/intelwatch/internal/annotate"
	"github.com/coldwine/intelwatch/internal/dedup"
	logpkg "github.com/coldwine/intelwatch/internal/log"
	"github.com/coldwine/intelwatch/internal/universe"
)

// Supervisor owns the pool of log workers. All worker lifecycle
// mutations run on one consumer loop, so workers are never created or
// destroyed concurrently and triggers stay serialized per worker.
type Supervisor struct {
	settings *Settings
	registry *dedup.Registry
	lookup   annotate.Lookup
	queue    *annotate.Queue
	sink     Sink

	ops      chan func()
	rooms    map[string]struct{}
	workers  map[string]*Worker
	restored map[string]int
	events   *logpkg.EventLog
}

// NewSupervisor wires the engine together. The registry is injected so
// tests (and multi-client setups) construct their own.
func NewSupervisor(settings *Settings, registry *dedup.Registry, lookup annotate.Lookup, queue *annotate.Queue, sink Sink) *Supervisor {
	return &Supervisor{
		settings: settings,
		registry: registry,
		lookup:   lookup,
		queue:    queue,
		sink:     sink,
		ops:      make(chan func(), 64),
		rooms:    make(map[string]struct{}),
		workers:  make(map[string]*Worker),
	}
}

// Start runs the lifecycle loop until ctx is cancelled, then stops all
// workers and drains them before returning.
func (s *Supervisor) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			return
		case op := <-s.ops:
			op()
		}
	}
}

func (s *Supervisor) stopAll() {
	var wg sync.WaitGroup
	for _, w := range s.workers {
		w.Stop()
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Wait()
		}(w)
	}
	wg.Wait()
	s.workers = make(map[string]*Worker)
}

// enqueue hands an op to the lifecycle loop. Must not be called from
// inside an op (single consumer).
func (s *Supervisor) enqueue(op func()) {
	s.ops <- op
}

// AddLogFile starts monitoring a log file if its room is monitored or
// a Local channel. Called by the file watcher on creation.
func (s *Supervisor) AddLogFile(path string) {
	s.enqueue(func() { s.addLocked(path) })
}

// FileChanged routes a change trigger to the file's worker, creating
// one first if the file is new.
func (s *Supervisor) FileChanged(path string) {
	s.enqueue(func() {
		if w, ok := s.workers[path]; ok {
			w.Notify()
			return
		}
		s.addLocked(path)
	})
}

// RemoveLogFile stops and forgets the file's worker.
func (s *Supervisor) RemoveLogFile(path string) {
	s.enqueue(func() { s.removeLocked(path) })
}

// SetEventLog attaches the structured event log. Worker lifecycle
// events are emitted on the ops loop, so attachment is queued too.
func (s *Supervisor) SetEventLog(events *logpkg.EventLog) {
	s.enqueue(func() { s.events = events })
}

// logEvent runs on the ops loop only.
func (s *Supervisor) logEvent(evt logpkg.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Log(evt); err != nil {
		log.Printf("chat: event log failed: %v", err)
	}
}

func (s *Supervisor) addLocked(path string) {
	if _, ok := s.workers[path]; ok {
		return
	}
	room := RoomName(path)
	if !s.monitored(room) {
		return
	}
	w := NewWorker(path, s.settings, s.registry, s.lookup, s.queue, s.sink, s.workerDied)
	if off, ok := s.restored[path]; ok {
		w.setOffset(off)
		delete(s.restored, path)
	}
	s.workers[path] = w
	log.Printf("chat: watching %s (room %s)", path, room)
	w.Start()
	s.logEvent(logpkg.NewEvent(logpkg.EventTypeWorkerStarted, room, "").WithText(path))
}

func (s *Supervisor) removeLocked(path string) {
	w, ok := s.workers[path]
	if !ok {
		return
	}
	delete(s.workers, path)
	w.Stop()
	w.Wait()
	log.Printf("chat: dropped %s", path)
	s.logEvent(logpkg.NewEvent(logpkg.EventTypeWorkerStopped, w.Room(), "").WithText(path))
}

func (s *Supervisor) monitored(room string) bool {
	if IsLocalRoom(room) {
		return true
	}
	_, ok := s.rooms[room]
	return ok
}

// workerDied is called from a worker goroutine when a file proves
// unusable; the removal is queued, never applied inline.
func (s *Supervisor) workerDied(path string) {
	select {
	case s.ops <- func() {
		delete(s.workers, path)
		s.logEvent(logpkg.NewEvent(logpkg.EventTypeWorkerStopped, RoomName(path), "").
			WithText(path).WithError("no usable header"))
	}:
	default:
		// Supervisor is shutting down; the map dies with it.
	}
}

// RestoreOffsets seeds consumed-line offsets from the last run's state
// file. Call before the watcher reports existing files; offsets for
// files already being worked are ignored.
func (s *Supervisor) RestoreOffsets(offsets map[string]int) {
	s.enqueue(func() {
		s.restored = make(map[string]int, len(offsets))
		for path, off := range offsets {
			s.restored[path] = off
		}
	})
}

// UpdateRoomNames replaces the monitored room set and tidies workers
// whose room fell out of it. Local channels are always kept.
func (s *Supervisor) UpdateRoomNames(names []string) {
	s.enqueue(func() {
		s.rooms = make(map[string]struct{}, len(names))
		for _, name := range names {
			s.rooms[name] = struct{}{}
		}
		for path, w := range s.workers {
			if !s.monitored(w.Room()) {
				s.removeLocked(path)
			}
		}
	})
}

// UpdateSystemGraph swaps the region graph for all workers.
func (s *Supervisor) UpdateSystemGraph(graph *universe.Graph) {
	s.enqueue(func() { s.settings.SetGraph(graph) })
}

// SetShipParserEnabled toggles the ship-mention pass engine-wide.
func (s *Supervisor) SetShipParserEnabled(on bool) {
	s.enqueue(func() { s.settings.SetShipParser(on) })
}

// SetCharacterParserEnabled toggles the character pass engine-wide.
func (s *Supervisor) SetCharacterParserEnabled(on bool) {
	s.enqueue(func() { s.settings.SetCharacterParser(on) })
}

// Offsets snapshots every worker's consumed-line offset, for the
// restart state file. Blocks until the lifecycle loop serves it.
func (s *Supervisor) Offsets() map[string]int {
	out := make(chan map[string]int, 1)
	s.enqueue(func() {
		snap := make(map[string]int, len(s.workers))
		for path, w := range s.workers {
			snap[path] = w.Offset()
		}
		out <- snap
	})
	return <-out
}
