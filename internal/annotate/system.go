package annotate

import (
	"context"
	"sort"
	"strings"

	"github.com/coldwine/intelwatch/internal/parse"
	"github.com/coldwine/intelwatch/internal/universe"
	"github.com/coldwine/intelwatch/pkg/intel"
)

// systemStoplist suppresses genuinely lowercase/mixed-case occurrences
// of short words that also happen to be system-name shapes. A token
// already in all caps is allowed through to exact matching.
var systemStoplist = map[string]struct{}{
	"IN": {},
	"IS": {},
	"AS": {},
}

// SystemPass links system mentions and appends the resolved systems to
// the message's system list. Matching runs tiered per token, first hit
// wins: exact name, short prefix, initials across a dash, dash-stripped
// short code.
type SystemPass struct {
	index map[string]*universe.System
	names []string // sorted uppercased names, for deterministic fuzzy tiers
}

// NewSystemPass builds a pass over the graph's uppercased-name index.
func NewSystemPass(index map[string]*universe.System) *SystemPass {
	names := make([]string, 0, len(index))
	for name := range index {
		names = append(names, name)
	}
	sort.Strings(names)
	return &SystemPass{index: index, names: names}
}

func (p *SystemPass) Name() string { return "system" }

// Apply makes at most one substitution and reports whether it did.
func (p *SystemPass) Apply(_ context.Context, m *intel.Message) bool {
	body := m.Body()
	for _, idx := range body.Runs() {
		text, ok := body.Run(idx)
		if !ok {
			continue
		}
		toks := tokenize(text)
		for ti, tok := range toks {
			start, end, word := tok.core(parse.Punctuation)
			stripped := parse.Strip(word)
			upper := strings.ToUpper(stripped)
			if len(upper) < 2 {
				continue
			}
			if p.skipGate(toks, ti) {
				continue
			}
			if _, stop := systemStoplist[upper]; stop && stripped != upper {
				continue
			}
			sys := p.match(upper)
			if sys == nil {
				continue
			}

			m.AddSystem(sys.Name)
			sys.AddMessage(m)
			if err := body.Substitute(idx, start, end, intel.Link{Target: "mark_system/" + sys.Name}); err != nil {
				return false
			}
			return true
		}
	}
	return false
}

// skipGate suppresses "X GATE" mentions (the gate, not the system)
// while still allowing "X GATE TO Y".
func (p *SystemPass) skipGate(toks []token, i int) bool {
	if i+1 >= len(toks) {
		return false
	}
	next := strings.ToUpper(parse.Strip(toks[i+1].raw))
	if next != "GATE" {
		return false
	}
	if i+2 < len(toks) && strings.ToUpper(parse.Strip(toks[i+2].raw)) == "TO" {
		return false
	}
	return true
}

// match resolves an uppercased token against the system index, trying
// the tiers in order.
func (p *SystemPass) match(tok string) *universe.System {
	// (a) exact name
	if sys, ok := p.index[tok]; ok {
		return sys
	}

	// (b) short token that prefixes a name, e.g. "B-7" for B-7DFU
	if len(tok) >= 2 && len(tok) <= 4 {
		for _, name := range p.names {
			if strings.HasPrefix(name, tok) {
				return p.index[name]
			}
		}
	}

	// (c) initials across a dash, e.g. "I-I" for I43-IF3
	if strings.Contains(tok, "-") && len(tok) > 2 {
		if sys := p.matchInitials(tok); sys != nil {
			return sys
		}
	}

	// (d) dash-stripped short code, e.g. "FY" for F-YH58
	if len(tok) > 1 {
		for _, name := range p.names {
			if strings.HasPrefix(strings.ReplaceAll(name, "-", ""), tok) {
				return p.index[name]
			}
		}
	}
	return nil
}

func (p *SystemPass) matchInitials(tok string) *universe.System {
	tp := strings.Split(tok, "-")
	if len(tp) != 2 || tp[0] == "" || tp[1] == "" {
		return nil
	}
	for _, name := range p.names {
		np := strings.Split(name, "-")
		if len(np) != 2 || len(np[0]) <= 1 || len(np[1]) <= 1 {
			continue
		}
		if tp[0][0] == np[0][0] && tp[1][0] == np[1][0] {
			return p.index[name]
		}
	}
	return nil
}
