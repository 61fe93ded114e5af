package universe

import (
	"fmt"
	"strings"
	"time"

	"github.com/coldwine/intelwatch/pkg/intel"
)

// Gate is one map connection between two named systems.
type Gate struct {
	From string
	To   string
}

// Graph is the region map. Its structure (nodes and edges) is built
// once from the map source and treated as immutable afterwards; only
// per-system state mutates at runtime. A structural change such as a
// new jump bridge means rebuilding the graph.
type Graph struct {
	systems map[string]*System // keyed by uppercased name
}

// Build constructs a graph from system names and gate pairs. Edges are
// stored symmetrically. Gates naming unknown systems are an error: the
// map source and the system list must agree.
func Build(names []string, gates []Gate) (*Graph, error) {
	g := &Graph{systems: make(map[string]*System, len(names))}
	for _, name := range names {
		key := strings.ToUpper(name)
		if _, dup := g.systems[key]; dup {
			return nil, fmt.Errorf("universe: duplicate system %q", name)
		}
		g.systems[key] = newSystem(name)
	}
	for _, gate := range gates {
		if err := g.connect(gate.From, gate.To); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Graph) connect(a, b string) error {
	sa := g.System(a)
	sb := g.System(b)
	if sa == nil || sb == nil {
		return fmt.Errorf("universe: gate %s-%s references unknown system", a, b)
	}
	if sa == sb {
		return fmt.Errorf("universe: gate %s-%s is a self loop", a, b)
	}
	sa.addNeighbour(sb)
	sb.addNeighbour(sa)
	return nil
}

// AddBridge adds a jump-bridge edge between two systems. Like gates,
// bridges are symmetric.
func (g *Graph) AddBridge(a, b string) error {
	return g.connect(a, b)
}

// System looks a system up by name, case-insensitively. Returns nil
// when the name is not on the map.
func (g *Graph) System(name string) *System {
	return g.systems[strings.ToUpper(name)]
}

// Index returns the uppercased-name index used by the annotation
// passes. The map must be treated as read-only.
func (g *Graph) Index() map[string]*System {
	return g.systems
}

// Len returns the number of systems on the map.
func (g *Graph) Len() int { return len(g.systems) }

// Hop is one system discovered by a neighbourhood walk, with its
// distance in jumps from the origin.
type Hop struct {
	System   *System
	Distance int
}

// Neighbours expands breadth-first from the named system up to
// distance jumps. Distance 0 returns only the system itself. The
// origin is included with distance 0.
func (g *Graph) Neighbours(name string, distance int) ([]Hop, error) {
	origin := g.System(name)
	if origin == nil {
		return nil, fmt.Errorf("universe: unknown system %q", name)
	}

	seen := map[*System]int{origin: 0}
	frontier := []*System{origin}
	for d := 1; d <= distance && len(frontier) > 0; d++ {
		var next []*System
		for _, sys := range frontier {
			for _, n := range sys.Neighbours() {
				if _, ok := seen[n]; ok {
					continue
				}
				seen[n] = d
				next = append(next, n)
			}
		}
		frontier = next
	}

	hops := make([]Hop, 0, len(seen))
	for sys, d := range seen {
		hops = append(hops, Hop{System: sys, Distance: d})
	}
	return hops, nil
}

// Apply records a message against every system it mentions and runs
// the status transition on each. Transient statuses still attach the
// message for display but leave system state alone (SetStatus ignores
// them). Returns the systems whose persisted status changed.
func (g *Graph) Apply(m *intel.Message, at time.Time) []*System {
	var changed []*System
	for _, name := range m.Systems() {
		sys := g.System(name)
		if sys == nil {
			continue
		}
		before := sys.Status()
		sys.SetStatus(m.Status, at)
		if sys.Status() != before {
			changed = append(changed, sys)
		}
	}
	return changed
}
