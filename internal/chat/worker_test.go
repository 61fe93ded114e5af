package chat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coldwine/intelwatch/internal/annotate"
	"github.com/coldwine/intelwatch/internal/dedup"
	"github.com/coldwine/intelwatch/internal/parse"
	"github.com/coldwine/intelwatch/internal/universe"
	"github.com/coldwine/intelwatch/pkg/intel"
)

type recordSink struct {
	mu      sync.Mutex
	added   []*intel.Message
	updated []*intel.Message
	chars   []string

	addedCh   chan *intel.Message
	updatedCh chan *intel.Message
}

func newRecordSink() *recordSink {
	return &recordSink{
		addedCh:   make(chan *intel.Message, 64),
		updatedCh: make(chan *intel.Message, 64),
	}
}

func (s *recordSink) MessageAdded(m *intel.Message) {
	s.mu.Lock()
	s.added = append(s.added, m)
	s.mu.Unlock()
	s.addedCh <- m
}

func (s *recordSink) MessageUpdated(m *intel.Message) {
	s.mu.Lock()
	s.updated = append(s.updated, m)
	s.mu.Unlock()
	s.updatedCh <- m
}

func (s *recordSink) CharacterDiscovered(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chars = append(s.chars, name)
}

func (s *recordSink) addedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.added)
}

func waitMsg(t *testing.T, ch chan *intel.Message) *intel.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message event")
		return nil
	}
}

type nopLookup struct{}

func (nopLookup) CharacterByName(context.Context, string) (*annotate.Character, error) {
	return nil, nil
}
func (nopLookup) ShipIndex() map[string]annotate.Ship              { return nil }
func (nopLookup) GroupName(context.Context, int64) (string, error) { return "", nil }

// logHeader is a chat-log header block of exactly headerOffset lines.
func logHeader(listener string, session time.Time) []string {
	return []string{
		"---------------------------------------------------------------",
		"",
		"  Channel ID:      delve.imperium",
		"  Channel Name:    delve.imperium",
		"  Listener:        " + listener,
		"  Session started: " + session.Format(parse.TimeLayout),
		"",
		"---------------------------------------------------------------",
		"",
		"",
		"",
		"",
	}
}

func writeLog(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\r\n")+"\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func stamp(at time.Time, user, text string) string {
	return fmt.Sprintf("[%s] %s> %s", at.Format(parse.TimeLayout), user, text)
}

type workerEnv struct {
	dir      string
	settings *Settings
	registry *dedup.Registry
	queue    *annotate.Queue
	sink     *recordSink
	cancel   context.CancelFunc
}

func newWorkerEnv(t *testing.T, systems []string, gates []universe.Gate) *workerEnv {
	t.Helper()
	graph, err := universe.Build(systems, gates)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	queue := annotate.NewQueue(64)
	go queue.Start(ctx)

	return &workerEnv{
		dir:      t.TempDir(),
		settings: NewSettings(graph),
		registry: dedup.NewRegistry(),
		queue:    queue,
		sink:     newRecordSink(),
		cancel:   cancel,
	}
}

func (e *workerEnv) startWorker(t *testing.T, path string) *Worker {
	t.Helper()
	w := NewWorker(path, e.settings, e.registry, nopLookup{}, e.queue, e.sink, nil)
	w.Start()
	t.Cleanup(func() {
		w.Stop()
		w.Wait()
	})
	return w
}

func TestWorkerEmitsRequestAndAlarm(t *testing.T) {
	env := newWorkerEnv(t, []string{"B-7DFU", "1DQ1-A"}, nil)
	now := time.Now().UTC()
	lines := append(logHeader("Bob Pilot", now.Add(-time.Minute)),
		stamp(now, "Some Guy", "Status?"),
		stamp(now, "Other Guy", "B-7DFU 5 hostiles"),
	)
	path := writeLog(t, env.dir, "delve.imperium_20240115_200000_123.txt", lines)
	env.startWorker(t, path)

	first := waitMsg(t, env.sink.addedCh)
	if first.Status != intel.StatusRequest {
		t.Errorf("first status = %v, want request", first.Status)
	}
	second := waitMsg(t, env.sink.addedCh)
	if second.Status != intel.StatusAlarm {
		t.Errorf("second status = %v, want alarm", second.Status)
	}
	if got := second.Systems(); len(got) != 1 || got[0] != "B-7DFU" {
		t.Errorf("systems = %v", got)
	}

	// Added always precedes updated for the same message.
	u1 := waitMsg(t, env.sink.updatedCh)
	u2 := waitMsg(t, env.sink.updatedCh)
	if u1 != first || u2 != second {
		t.Error("update events out of order")
	}

	env.sink.mu.Lock()
	chars := append([]string(nil), env.sink.chars...)
	env.sink.mu.Unlock()
	if len(chars) != 1 || chars[0] != "Bob Pilot" {
		t.Errorf("characters discovered = %v", chars)
	}
}

func TestWorkerClearInheritsFromRecentRequest(t *testing.T) {
	env := newWorkerEnv(t, []string{"B-7DFU"}, nil)
	now := time.Now().UTC()
	lines := append(logHeader("Bob Pilot", now.Add(-time.Minute)),
		stamp(now.Add(-10*time.Second), "Some Guy", "B-7DFU status?"),
		stamp(now, "Other Guy", "clear"),
	)
	path := writeLog(t, env.dir, "delve.imperium_20240115_200000_123.txt", lines)
	env.startWorker(t, path)

	request := waitMsg(t, env.sink.addedCh)
	if request.Status != intel.StatusRequest || len(request.Systems()) != 1 {
		t.Fatalf("request = %v %v", request.Status, request.Systems())
	}
	clear := waitMsg(t, env.sink.addedCh)
	if clear.Status != intel.StatusClear {
		t.Fatalf("clear status = %v", clear.Status)
	}

	waitMsg(t, env.sink.updatedCh) // request refined
	updated := waitMsg(t, env.sink.updatedCh)
	if updated != clear {
		t.Fatal("expected the clear message updated second")
	}
	if got := updated.Systems(); len(got) != 1 || got[0] != "B-7DFU" {
		t.Errorf("inherited systems = %v", got)
	}
}

func TestWorkerLocalLocation(t *testing.T) {
	env := newWorkerEnv(t, []string{"B-7DFU", "1DQ1-A"}, nil)
	now := time.Now().UTC()
	lines := append(logHeader("Bob Pilot", now.Add(-time.Minute)),
		stamp(now, "EVE System", "Channel changed to Local : B-7DFU"),
		// Out of order: an older notice must not move the location back.
		stamp(now.Add(-30*time.Second), "EVE System", "Channel changed to Local : 1DQ1-A"),
	)
	path := writeLog(t, env.dir, "Local_20240115_200000_123.txt", lines)
	env.startWorker(t, path)

	m := waitMsg(t, env.sink.addedCh)
	if m.Status != intel.StatusLocation {
		t.Errorf("status = %v, want location", m.Status)
	}
	if got := m.Systems(); len(got) != 1 || got[0] != "B-7DFU" {
		t.Errorf("systems = %v", got)
	}
	waitMsg(t, env.sink.updatedCh)

	// Give the worker a moment: no second location may appear.
	time.Sleep(100 * time.Millisecond)
	if env.sink.addedCount() != 1 {
		t.Errorf("added %d messages, want 1", env.sink.addedCount())
	}
	if got := env.settings.Graph().System("B-7DFU").Located(); len(got) != 1 || got[0] != "Bob Pilot" {
		t.Errorf("located = %v", got)
	}
}

func TestWorkerSelfTerminatesOnUnusableFile(t *testing.T) {
	env := newWorkerEnv(t, []string{"B-7DFU"}, nil)
	lines := make([]string, 0, 14)
	for i := 0; i < 14; i++ {
		lines = append(lines, "not a chat log header")
	}
	path := writeLog(t, env.dir, "delve.imperium_20240115_200000_123.txt", lines)

	dead := make(chan string, 1)
	w := NewWorker(path, env.settings, env.registry, nopLookup{}, env.queue, env.sink, func(p string) { dead <- p })
	w.Start()

	select {
	case p := <-dead:
		if p != path {
			t.Errorf("dead path = %q", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not self-terminate")
	}
	w.Wait()
	if env.sink.addedCount() != 0 {
		t.Errorf("unusable file emitted %d messages", env.sink.addedCount())
	}
}

func TestWorkerSkipsStaleLines(t *testing.T) {
	env := newWorkerEnv(t, []string{"B-7DFU"}, nil)
	now := time.Now().UTC()
	lines := append(logHeader("Bob Pilot", now.Add(-2*time.Hour)),
		stamp(now.Add(-time.Hour), "Old Guy", "B-7DFU hostiles"),
		stamp(now, "New Guy", "B-7DFU hostiles again"),
	)
	path := writeLog(t, env.dir, "delve.imperium_20240115_200000_123.txt", lines)
	env.startWorker(t, path)

	m := waitMsg(t, env.sink.addedCh)
	if m.User != "New Guy" {
		t.Errorf("emitted %q, stale line should have been fast-forwarded", m.User)
	}
	time.Sleep(100 * time.Millisecond)
	if env.sink.addedCount() != 1 {
		t.Errorf("added %d, want 1", env.sink.addedCount())
	}
}

func TestWorkerMalformedLineIsSkipped(t *testing.T) {
	env := newWorkerEnv(t, []string{"B-7DFU"}, nil)
	now := time.Now().UTC()
	lines := append(logHeader("Bob Pilot", now.Add(-time.Minute)),
		"garbage without a timestamp",
		stamp(now, "Some Guy", "B-7DFU clear"),
	)
	path := writeLog(t, env.dir, "delve.imperium_20240115_200000_123.txt", lines)
	env.startWorker(t, path)

	m := waitMsg(t, env.sink.addedCh)
	if m.Status != intel.StatusClear {
		t.Errorf("status = %v", m.Status)
	}
}

func TestWorkerKOSRoomPrefix(t *testing.T) {
	env := newWorkerEnv(t, []string{"B-7DFU"}, nil)
	now := time.Now().UTC()
	lines := append(logHeader("Bob Pilot", now.Add(-time.Minute)),
		stamp(now, "Bob", "Dread Guristas"),
	)
	path := writeLog(t, env.dir, "=kos_20240115_200000_111.txt", lines)

	// =kos rooms are not Local and must be in the monitored set; the
	// worker itself does not filter, so start it directly.
	env.startWorker(t, path)
	m := waitMsg(t, env.sink.addedCh)
	if m.Status != intel.StatusKOSRequest {
		t.Errorf("status = %v, want kos request", m.Status)
	}
	if !strings.HasPrefix(m.PlainText, "xxx ") {
		t.Errorf("text = %q, want xxx prefix", m.PlainText)
	}
}

func TestWorkerSoundTest(t *testing.T) {
	env := newWorkerEnv(t, []string{"B-7DFU"}, nil)
	now := time.Now().UTC()
	lines := append(logHeader("Bob Pilot", now.Add(-time.Minute)),
		stamp(now, "Bob", "vintelsound_test"),
	)
	path := writeLog(t, env.dir, "delve.imperium_20240115_200000_123.txt", lines)
	env.startWorker(t, path)

	m := waitMsg(t, env.sink.addedCh)
	if m.Status != intel.StatusSoundTest {
		t.Errorf("status = %v, want sound test", m.Status)
	}
}

func TestWorkerStopIdempotent(t *testing.T) {
	env := newWorkerEnv(t, []string{"B-7DFU"}, nil)
	now := time.Now().UTC()
	path := writeLog(t, env.dir, "delve.imperium_20240115_200000_123.txt",
		logHeader("Bob Pilot", now))
	w := NewWorker(path, env.settings, env.registry, nopLookup{}, env.queue, env.sink, nil)
	w.Start()
	w.Stop()
	w.Stop()
	w.Wait()
}

func TestOffsetsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "offsets.json")
	in := map[string]int{
		"/logs/delve.imperium_20240115_200000_123.txt": 42,
		"/logs/Local_20240115_200000_123.txt":          7,
	}
	if err := SaveOffsets(path, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := LoadOffsets(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("out = %v", out)
	}
	for k, v := range in {
		if out[k] != v {
			t.Errorf("offset[%q] = %d, want %d", k, out[k], v)
		}
	}
}

func TestLoadOffsetsMissingFile(t *testing.T) {
	out, err := LoadOffsets(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("out = %v", out)
	}
}
