// Package annotate rewrites a message's rich-text body in place,
// linking system names, ship types, character names and URLs. Passes
// scan only literal runs, so every substitution shrinks the scannable
// text and repeated application converges.
package annotate

import (
	"context"
	"log"

	"github.com/coldwine/intelwatch/pkg/intel"
)

// Character is a resolved player record from the game-data API.
type Character struct {
	ID   int64
	Name string
}

// Ship is one entry of the ship type index.
type Ship struct {
	TypeID  int64
	Name    string
	GroupID int64
}

// Lookup is the game-data collaborator consulted by the ship and
// character passes. Calls may block on network I/O and may fail; a
// failure is treated as "no match", never as fatal.
type Lookup interface {
	// CharacterByName returns nil, nil when the name is not a player.
	CharacterByName(ctx context.Context, name string) (*Character, error)
	// ShipIndex maps uppercased ship names to their records.
	ShipIndex() map[string]Ship
	// GroupName resolves a ship group id to its display name.
	GroupName(ctx context.Context, groupID int64) (string, error)
}

// Pass is one annotation rewrite. Apply makes at most one substitution
// and reports whether it did, signalling the runner to rescan.
type Pass interface {
	Name() string
	Apply(ctx context.Context, m *intel.Message) bool
}

// maxRounds bounds how often a single pass may signal a hit for one
// message. Hitting the bound indicates pathological input; the pass is
// abandoned for that message, never looped forever.
const maxRounds = 5

// Run drives each pass to convergence over the message body.
func Run(ctx context.Context, m *intel.Message, passes ...Pass) {
	for _, pass := range passes {
		for i := 0; pass.Apply(ctx, m); i++ {
			if i == maxRounds-1 {
				log.Printf("annotate: pass %s hit the convergence bound for %q", pass.Name(), m.PlainText)
				break
			}
		}
	}
}
