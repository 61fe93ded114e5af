package chat

import (
	"sync"
	"time"

	"github.com/coldwine/intelwatch/internal/annotate"
	"github.com/coldwine/intelwatch/internal/universe"
)

const (
	// DefaultMaxMessageAge drops lines too stale to act on.
	DefaultMaxMessageAge = 20 * time.Minute

	// DefaultFreshness bounds the startup fast-forward: lines older
	// than this are consumed without being emitted.
	DefaultFreshness = 300 * time.Second
)

// Settings is the shared, supervisor-pushed configuration all workers
// read. Workers take a snapshot per trigger instead of polling pieces.
type Settings struct {
	mu         sync.RWMutex
	graph      *universe.Graph
	systemPass *annotate.SystemPass
	ships      bool
	characters bool
	maxAge     time.Duration
	freshness  time.Duration
	now        func() time.Time
}

// NewSettings builds settings over the given region graph.
func NewSettings(graph *universe.Graph) *Settings {
	return &Settings{
		graph:      graph,
		systemPass: annotate.NewSystemPass(graph.Index()),
		maxAge:     DefaultMaxMessageAge,
		freshness:  DefaultFreshness,
		now:        time.Now,
	}
}

// snapshot is one coherent view of the settings.
type snapshot struct {
	graph      *universe.Graph
	systemPass *annotate.SystemPass
	ships      bool
	characters bool
	maxAge     time.Duration
	freshness  time.Duration
	now        func() time.Time
}

func (s *Settings) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot{
		graph:      s.graph,
		systemPass: s.systemPass,
		ships:      s.ships,
		characters: s.characters,
		maxAge:     s.maxAge,
		freshness:  s.freshness,
		now:        s.now,
	}
}

// SetGraph swaps in a rebuilt region graph (a structural map change is
// a stop-the-world rebuild, not an edit).
func (s *Settings) SetGraph(graph *universe.Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = graph
	s.systemPass = annotate.NewSystemPass(graph.Index())
}

// Graph returns the current region graph.
func (s *Settings) Graph() *universe.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph
}

// SetShipParser toggles the ship-mention pass.
func (s *Settings) SetShipParser(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ships = on
}

// SetCharacterParser toggles the character-name pass.
func (s *Settings) SetCharacterParser(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters = on
}

// SetMaxAge overrides the staleness cutoff.
func (s *Settings) SetMaxAge(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxAge = d
}

// SetFreshness overrides the startup fast-forward threshold.
func (s *Settings) SetFreshness(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freshness = d
}

// SetClock replaces the time source, for tests.
func (s *Settings) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
