package annotate

import (
	"context"
	"log"
	"strings"

	"github.com/coldwine/intelwatch/internal/parse"
	"github.com/coldwine/intelwatch/pkg/intel"
)

// shipBoundary is the set of characters allowed to border a ship-name
// match. Anything else means the hit is inside a longer unrelated word.
const shipBoundary = " .,()x:sXS"

// ShipPass links ship type mentions using the collaborator's ship
// index and resolves the ship group for the tooltip.
type ShipPass struct {
	lookup Lookup
}

func NewShipPass(lookup Lookup) *ShipPass {
	return &ShipPass{lookup: lookup}
}

func (p *ShipPass) Name() string { return "ship" }

// Apply makes at most one substitution and reports whether it did.
func (p *ShipPass) Apply(ctx context.Context, m *intel.Message) bool {
	index := p.lookup.ShipIndex()
	if len(index) == 0 {
		return false
	}

	body := m.Body()
	for _, idx := range body.Runs() {
		text, ok := body.Run(idx)
		if !ok {
			continue
		}
		for _, tok := range tokenize(text) {
			start, end, word := tok.core(parse.Punctuation)
			ship, hit := index[strings.ToUpper(parse.Strip(word))]
			if !hit {
				continue
			}
			if !boundaryOK(text, start, end) {
				continue
			}

			tooltip := ""
			if group, err := p.lookup.GroupName(ctx, ship.GroupID); err != nil {
				log.Printf("annotate: ship group lookup for %s: %v", ship.Name, err)
			} else {
				tooltip = group
			}
			if err := body.Substitute(idx, start, end, intel.Link{
				Target:  "ship_name/" + ship.Name,
				Tooltip: tooltip,
			}); err != nil {
				return false
			}
			return true
		}
	}
	return false
}

// boundaryOK checks the characters immediately outside [start,end).
func boundaryOK(text string, start, end int) bool {
	if start > 0 && !strings.ContainsRune(shipBoundary, rune(text[start-1])) {
		return false
	}
	if end < len(text) && !strings.ContainsRune(shipBoundary, rune(text[end])) {
		return false
	}
	return true
}
