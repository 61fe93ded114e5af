package annotate

import (
	"context"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/coldwine/intelwatch/internal/parse"
	"github.com/coldwine/intelwatch/pkg/intel"
)

// characterStoplist holds words never worth a player-name lookup.
var characterStoplist = map[string]struct{}{
	"IN":  {},
	"IS":  {},
	"AS":  {},
	"AND": {},
}

// maxNameWords is the widest word window tried for a character name.
// EVE names are at most first + last name plus a rank-like particle.
const maxNameWords = 3

// CharacterPass finds player names via the game-data collaborator.
// Candidate windows are tried widest first so "Zedan Chent-Shi" wins
// over a bare "Zedan", and shorter windows inside an already-found
// name are suppressed.
type CharacterPass struct {
	lookup Lookup
}

func NewCharacterPass(lookup Lookup) *CharacterPass {
	return &CharacterPass{lookup: lookup}
}

func (p *CharacterPass) Name() string { return "character" }

// Apply scans all literal runs, then substitutes every occurrence of
// each found name. Reports whether any substitution occurred.
func (p *CharacterPass) Apply(ctx context.Context, m *intel.Message) bool {
	found := p.scan(ctx, m)
	if len(found) == 0 {
		return false
	}

	// Longer names first so a contained shorter name cannot shadow.
	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	any := false
	for _, name := range names {
		for p.substituteOne(m, name, found[name]) {
			any = true
		}
	}
	return any
}

func (p *CharacterPass) scan(ctx context.Context, m *intel.Message) map[string]*Character {
	found := make(map[string]*Character)
	body := m.Body()
	for _, idx := range body.Runs() {
		text, ok := body.Run(idx)
		if !ok || len(text) < 3 {
			continue
		}
		toks := tokenize(text)
		for size := maxNameWords; size >= 1; size-- {
			for start := 0; start+size <= len(toks); start++ {
				candidate := text[toks[start].start:toks[start+size-1].end]
				if p.skipCandidate(candidate, found) {
					continue
				}
				record, err := p.lookup.CharacterByName(ctx, candidate)
				if err != nil {
					log.Printf("annotate: character lookup %q: %v", candidate, err)
					continue
				}
				if record != nil {
					found[candidate] = record
				}
			}
		}
	}
	return found
}

func (p *CharacterPass) skipCandidate(candidate string, found map[string]*Character) bool {
	for name := range found {
		if strings.Contains(name, candidate) {
			return true
		}
	}
	stripped := parse.Strip(candidate)
	if len(stripped) < 3 {
		return true
	}
	if _, stop := characterStoplist[strings.ToUpper(strings.TrimSpace(stripped))]; stop {
		return true
	}
	return false
}

// substituteOne links the first remaining occurrence of name; reports
// whether one was found.
func (p *CharacterPass) substituteOne(m *intel.Message, name string, record *Character) bool {
	body := m.Body()
	for _, idx := range body.Runs() {
		text, ok := body.Run(idx)
		if !ok {
			continue
		}
		at := strings.Index(text, name)
		if at < 0 {
			continue
		}
		link := intel.Link{
			Target:  "show_enemy/" + strconv.FormatInt(record.ID, 10),
			Tooltip: record.Name,
		}
		if err := body.Substitute(idx, at, at+len(name), link); err != nil {
			return false
		}
		return true
	}
	return false
}
