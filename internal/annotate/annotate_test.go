package annotate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/coldwine/intelwatch/internal/universe"
	"github.com/coldwine/intelwatch/pkg/intel"
)

type fakeLookup struct {
	characters map[string]*Character
	ships      map[string]Ship
	groups     map[int64]string
	charErr    error
	lookups    []string
}

func (f *fakeLookup) CharacterByName(_ context.Context, name string) (*Character, error) {
	f.lookups = append(f.lookups, name)
	if f.charErr != nil {
		return nil, f.charErr
	}
	return f.characters[name], nil
}

func (f *fakeLookup) ShipIndex() map[string]Ship { return f.ships }

func (f *fakeLookup) GroupName(_ context.Context, id int64) (string, error) {
	if name, ok := f.groups[id]; ok {
		return name, nil
	}
	return "", errors.New("no such group")
}

func testGraph(t *testing.T) *universe.Graph {
	t.Helper()
	g, err := universe.Build(
		[]string{"B-7DFU", "I43-IF3", "F-YH58", "1DQ1-A"},
		[]universe.Gate{{From: "B-7DFU", To: "1DQ1-A"}},
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return g
}

func alarmMsg(text string) *intel.Message {
	return intel.NewMessage("delve.imperium", "Some Guy", text,
		time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC), intel.StatusAlarm)
}

func TestSystemPassExactMatch(t *testing.T) {
	g := testGraph(t)
	pass := NewSystemPass(g.Index())
	m := alarmMsg("hostiles in B-7DFU now")

	if !pass.Apply(context.Background(), m) {
		t.Fatal("expected a hit")
	}
	if got := m.Systems(); len(got) != 1 || got[0] != "B-7DFU" {
		t.Errorf("systems = %v", got)
	}
	if !strings.Contains(m.Markup(), `href="mark_system/B-7DFU"`) {
		t.Errorf("markup = %q", m.Markup())
	}
	if msgs := g.System("B-7DFU").Messages(); len(msgs) != 1 || msgs[0] != m {
		t.Error("message not attached to system")
	}
	// No further matches: second apply is a no-op.
	if pass.Apply(context.Background(), m) {
		t.Error("second apply should be idempotent")
	}
}

func TestSystemPassFuzzyTiers(t *testing.T) {
	g := testGraph(t)
	pass := NewSystemPass(g.Index())

	cases := []struct {
		text string
		want string
	}{
		{"B-7 camped", "B-7DFU"},        // short prefix
		{"I-I has a bubble", "I43-IF3"}, // initials across the dash
		{"FY gate camp", ""},            // suppressed: followed by GATE
		{"FY gate to 1DQ", "F-YH58"},    // GATE TO re-allows the mention
		{"fy camp", "F-YH58"},           // dash-stripped short code
	}
	for _, tc := range cases {
		m := alarmMsg(tc.text)
		hit := pass.Apply(context.Background(), m)
		if tc.want == "" {
			if hit {
				t.Errorf("%q: unexpected match %v", tc.text, m.Systems())
			}
			continue
		}
		if !hit {
			t.Errorf("%q: no hit, want %s", tc.text, tc.want)
			continue
		}
		if got := m.Systems(); got[0] != tc.want {
			t.Errorf("%q: got %v, want %s", tc.text, got, tc.want)
		}
	}
}

func TestSystemPassStoplist(t *testing.T) {
	g, err := universe.Build([]string{"IS-R7P"}, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	pass := NewSystemPass(g.Index())

	// Lowercase "is" is stop-listed even though it prefixes IS-R7P.
	m := alarmMsg("there is trouble")
	if pass.Apply(context.Background(), m) {
		t.Errorf("lowercase stopword matched: %v", m.Systems())
	}

	// All-caps IS is a genuine mention.
	m = alarmMsg("IS camped")
	if !pass.Apply(context.Background(), m) {
		t.Fatal("all-caps token should match")
	}
	if m.Systems()[0] != "IS-R7P" {
		t.Errorf("systems = %v", m.Systems())
	}
}

func TestSystemPassOneSubstitutionPerApply(t *testing.T) {
	g := testGraph(t)
	pass := NewSystemPass(g.Index())
	m := alarmMsg("B-7DFU and 1DQ1-A both hot")

	if !pass.Apply(context.Background(), m) {
		t.Fatal("first apply")
	}
	if len(m.Systems()) != 1 {
		t.Fatalf("one apply linked %v", m.Systems())
	}
	if !pass.Apply(context.Background(), m) {
		t.Fatal("second apply")
	}
	if len(m.Systems()) != 2 {
		t.Fatalf("systems = %v", m.Systems())
	}
}

func TestShipPass(t *testing.T) {
	lookup := &fakeLookup{
		ships:  map[string]Ship{"MERLIN": {TypeID: 603, Name: "Merlin", GroupID: 25}},
		groups: map[int64]string{25: "Frigate"},
	}
	pass := NewShipPass(lookup)
	m := alarmMsg("flying a Merlin to B-7DFU")

	if !pass.Apply(context.Background(), m) {
		t.Fatal("expected a hit")
	}
	markup := m.Markup()
	if !strings.Contains(markup, `href="ship_name/Merlin"`) {
		t.Errorf("markup = %q", markup)
	}
	if !strings.Contains(markup, `title="Frigate"`) {
		t.Errorf("tooltip missing: %q", markup)
	}
	if pass.Apply(context.Background(), m) {
		t.Error("second apply should find nothing")
	}
}

func TestShipPassBoundary(t *testing.T) {
	lookup := &fakeLookup{ships: map[string]Ship{"ERIS": {TypeID: 22460, Name: "Eris", GroupID: 541}}}
	pass := NewShipPass(lookup)

	// "PERISCOPE" strips to a word that is not in the index, and the
	// boundary check keeps a mid-word hit from ever linking.
	m := alarmMsg("periscope up")
	if pass.Apply(context.Background(), m) {
		t.Errorf("matched inside a longer word: %q", m.Markup())
	}

	m = alarmMsg("2x Eris, on gate")
	if !pass.Apply(context.Background(), m) {
		t.Fatal("expected a hit with punctuation neighbours")
	}
}

func TestShipPassGroupLookupFailureStillLinks(t *testing.T) {
	lookup := &fakeLookup{ships: map[string]Ship{"MERLIN": {TypeID: 603, Name: "Merlin", GroupID: 99}}}
	pass := NewShipPass(lookup)
	m := alarmMsg("Merlin on scan")

	if !pass.Apply(context.Background(), m) {
		t.Fatal("lookup failure must not kill the substitution")
	}
	if strings.Contains(m.Markup(), "title=") {
		t.Errorf("unexpected tooltip: %q", m.Markup())
	}
}

func TestURLPass(t *testing.T) {
	m := alarmMsg("scout report https://zkillboard.com/system/30004759/ check it")
	pass := URLPass{}

	if !pass.Apply(context.Background(), m) {
		t.Fatal("expected a hit")
	}
	if !strings.Contains(m.Markup(), `href="link/https://zkillboard.com/system/30004759/"`) {
		t.Errorf("markup = %q", m.Markup())
	}
	if pass.Apply(context.Background(), m) {
		t.Error("second apply should find nothing")
	}
}

func TestURLPassMultipleViaRunner(t *testing.T) {
	m := alarmMsg("http://a.example and https://b.example")
	Run(context.Background(), m, URLPass{})
	markup := m.Markup()
	if !strings.Contains(markup, `href="link/http://a.example"`) ||
		!strings.Contains(markup, `href="link/https://b.example"`) {
		t.Errorf("markup = %q", markup)
	}
}

func TestCharacterPassPrefersLongerWindow(t *testing.T) {
	lookup := &fakeLookup{characters: map[string]*Character{
		"Zedan Chent-Shi": {ID: 90001, Name: "Zedan Chent-Shi"},
		"Zedan":           {ID: 90002, Name: "Zedan"},
	}}
	pass := NewCharacterPass(lookup)
	m := alarmMsg("Zedan Chent-Shi in B-7DFU")

	if !pass.Apply(context.Background(), m) {
		t.Fatal("expected a hit")
	}
	markup := m.Markup()
	if !strings.Contains(markup, `href="show_enemy/90001"`) {
		t.Errorf("markup = %q", markup)
	}
	if strings.Contains(markup, "show_enemy/90002") {
		t.Errorf("shorter window matched inside the found name: %q", markup)
	}
}

func TestCharacterPassStoplistAndShortCandidates(t *testing.T) {
	lookup := &fakeLookup{characters: map[string]*Character{}}
	pass := NewCharacterPass(lookup)
	m := alarmMsg("is in as")

	if pass.Apply(context.Background(), m) {
		t.Fatal("nothing should match")
	}
	for _, name := range lookup.lookups {
		upper := strings.ToUpper(strings.TrimSpace(name))
		if upper == "IN" || upper == "IS" || upper == "AS" {
			t.Errorf("stoplisted candidate %q was looked up", name)
		}
	}
}

func TestCharacterPassLookupFailureIsNoMatch(t *testing.T) {
	lookup := &fakeLookup{charErr: errors.New("api down")}
	pass := NewCharacterPass(lookup)
	m := alarmMsg("Somebody Dangerous spotted")

	if pass.Apply(context.Background(), m) {
		t.Error("errors must read as no match")
	}
}

func TestRunConvergenceBound(t *testing.T) {
	m := alarmMsg("pathological")
	calls := 0
	Run(context.Background(), m, passFunc{name: "always", fn: func() bool {
		calls++
		return true
	}})
	if calls != maxRounds {
		t.Errorf("pass invoked %d times, want %d", calls, maxRounds)
	}
}

func TestRunStopsWhenPassReturnsFalse(t *testing.T) {
	m := alarmMsg("ok")
	calls := 0
	Run(context.Background(), m, passFunc{name: "once", fn: func() bool {
		calls++
		return calls < 2
	}})
	if calls != 2 {
		t.Errorf("pass invoked %d times, want 2", calls)
	}
}

type passFunc struct {
	name string
	fn   func() bool
}

func (p passFunc) Name() string                               { return p.name }
func (p passFunc) Apply(context.Context, *intel.Message) bool { return p.fn() }
