package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/coldwine/intelwatch/internal/annotate"
	"github.com/coldwine/intelwatch/internal/dedup"
	"github.com/coldwine/intelwatch/internal/parse"
	"github.com/coldwine/intelwatch/pkg/intel"
)

// Sink receives the engine's events. Implementations must be safe for
// calls from worker goroutines and from the annotation queue.
type Sink interface {
	MessageAdded(m *intel.Message)
	MessageUpdated(m *intel.Message)
	CharacterDiscovered(name string)
}

type workerState int

const (
	stateHeaderScan workerState = iota
	stateTailing
	stateStopped
)

// recentLimit bounds the per-worker message history kept for the
// clear-inherits-from-request backfill.
const recentLimit = 50

// backfillDepth is how many recent messages a bare "clear" searches
// for a request to inherit systems from.
const backfillDepth = 4

// errUnusable marks a file whose header never yields both Listener and
// Session started; the worker self-terminates on it.
var errUnusable = errors.New("chat: unusable log file")

// Worker tails one chat log. It owns the consumed-line offset, the
// lazily parsed header, a bounded message history, and the character's
// last known location when the file is a Local channel.
type Worker struct {
	path  string
	room  string
	local bool

	settings *Settings
	registry *dedup.Registry
	lookup   annotate.Lookup
	queue    *annotate.Queue
	sink     Sink
	onDead   func(path string)

	inbox    chan struct{}
	quit     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	state     workerState
	character string
	session   time.Time

	mu      sync.Mutex
	offset  int
	recent  []*intel.Message
	lastLoc struct {
		system string
		at     time.Time
	}
}

// NewWorker builds a worker for one log file. Call Start to begin and
// Notify on every file-changed trigger.
func NewWorker(path string, settings *Settings, registry *dedup.Registry, lookup annotate.Lookup, queue *annotate.Queue, sink Sink, onDead func(string)) *Worker {
	room := RoomName(path)
	return &Worker{
		path:     path,
		room:     room,
		local:    IsLocalRoom(room),
		settings: settings,
		registry: registry,
		lookup:   lookup,
		queue:    queue,
		sink:     sink,
		onDead:   onDead,
		inbox:    make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Room returns the chat room the worker serves.
func (w *Worker) Room() string { return w.room }

// Path returns the log file path.
func (w *Worker) Path() string { return w.path }

// Offset returns the count of lines consumed so far.
func (w *Worker) Offset() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offset
}

func (w *Worker) setOffset(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.offset = n
}

// Start launches the worker loop and delivers the initial trigger.
func (w *Worker) Start() {
	go w.run()
	w.Notify()
}

// Notify signals that the file changed. Pending triggers coalesce; a
// stopped worker drops them.
func (w *Worker) Notify() {
	select {
	case w.inbox <- struct{}{}:
	default:
	}
}

// Stop terminates the worker. Idempotent; it unblocks the loop's wait.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}

// Wait blocks until the worker loop has exited.
func (w *Worker) Wait() { <-w.done }

func (w *Worker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.quit:
			w.state = stateStopped
			return
		case <-w.inbox:
			if err := w.process(); errors.Is(err, errUnusable) {
				log.Printf("chat: %s has no usable header, dropping worker", w.path)
				w.state = stateStopped
				if w.onDead != nil {
					w.onDead(w.path)
				}
				return
			}
		}
	}
}

// process reads the file and consumes lines past the current offset.
// Read failures are transient (the client may hold the file briefly)
// and retried on the next trigger.
func (w *Worker) process() error {
	snap := w.settings.snapshot()

	lines, err := readLines(w.path)
	if err != nil {
		log.Printf("chat: read %s: %v (will retry)", w.path, err)
		return nil
	}

	off := w.Offset()
	if w.state == stateHeaderScan {
		h, ok := scanHeader(lines)
		if !ok {
			if len(lines) >= headerLines {
				return errUnusable
			}
			// Header may still be flushing on a brand-new file.
			return nil
		}
		w.character = h.character
		w.session = h.session
		w.sink.CharacterDiscovered(h.character)
		// A restored offset from the last run wins over the freshness
		// fast-forward so consumed lines are not replayed.
		if ff := fastForward(lines, headerOffset, snap); ff > off {
			off = ff
		}
		w.state = stateTailing
	}

	if off > len(lines) {
		// The file shrank under us; do not replay.
		off = len(lines)
	}
	for _, raw := range lines[off:] {
		w.handleLine(raw, snap)
	}
	w.setOffset(len(lines))
	return nil
}

// fastForward consumes history older than the freshness threshold
// without emitting, so startup does not replay the whole log.
func fastForward(lines []string, off int, snap snapshot) int {
	now := snap.now()
	for off < len(lines) {
		line, err := parse.ParseLine(lines[off])
		if err != nil {
			off++
			continue
		}
		if now.Sub(line.UTC) <= snap.freshness {
			break
		}
		off++
	}
	return off
}

func (w *Worker) handleLine(raw string, snap snapshot) {
	if strings.TrimSpace(raw) == "" {
		return
	}
	line, err := parse.ParseLine(raw)
	if err != nil {
		log.Printf("chat: %s: %v (line skipped)", w.path, err)
		return
	}
	if snap.now().Sub(line.UTC) > snap.maxAge {
		return
	}

	var m *intel.Message
	if w.local {
		m = w.classifyLocal(line, snap)
	} else {
		m = w.classifyChat(line, snap)
	}
	if m == nil {
		return
	}

	if !w.registry.Add(m) {
		return
	}
	w.remember(m)
	w.sink.MessageAdded(m)
	w.queue.Schedule(func(ctx context.Context) { w.refine(ctx, m, snap) })
}

// classifyLocal handles Local-channel lines: system notices carry the
// character's current system. Out-of-order notices must not move the
// location backwards.
func (w *Worker) classifyLocal(line parse.Line, snap snapshot) *intel.Message {
	if !intel.IsSystemUser(line.User) {
		return nil
	}
	colon := strings.LastIndex(line.Text, ":")
	if colon < 0 {
		return nil
	}
	name := strings.TrimSpace(line.Text[colon+1:])
	sys := snap.graph.System(name)
	if sys == nil {
		return nil
	}

	w.mu.Lock()
	if !line.UTC.After(w.lastLoc.at) {
		w.mu.Unlock()
		return nil
	}
	previous := w.lastLoc.system
	w.lastLoc.system = sys.Name
	w.lastLoc.at = line.UTC
	w.mu.Unlock()

	if w.character != "" {
		if prev := snap.graph.System(previous); prev != nil {
			prev.RemoveLocated(w.character)
		}
		sys.AddLocated(w.character)
	}

	m := intel.NewMessage(w.room, line.User, line.Text, line.UTC, intel.StatusLocation)
	m.AddSystem(sys.Name)
	return m
}

// classifyChat builds a message from an intel-channel line and runs
// the system-mention pass over its body.
func (w *Worker) classifyChat(line parse.Line, snap snapshot) *intel.Message {
	text := line.Text
	upper := strings.ToUpper(text)

	var status intel.Status
	switch {
	case strings.HasPrefix(upper, "XXX "):
		status = intel.StatusKOSRequest
	case strings.HasPrefix(w.room, "="):
		// KOS channels treat every line as a check request.
		text = "xxx " + text
		status = intel.StatusKOSRequest
	case strings.HasPrefix(upper, "VINTELSOUND_TEST"):
		status = intel.StatusSoundTest
	default:
		status = parse.StatusFor(text)
	}

	m := intel.NewMessage(w.room, line.User, text, line.UTC, status)
	annotate.Run(context.Background(), m, snap.systemPass)
	return m
}

// refine runs the lookup-bound passes on the annotation queue and
// resolves a bare clear against the recent request history, then
// reports the message as updated.
func (w *Worker) refine(ctx context.Context, m *intel.Message, snap snapshot) {
	if m.Status != intel.StatusLocation {
		passes := []annotate.Pass{annotate.URLPass{}}
		if snap.ships {
			passes = append(passes, annotate.NewShipPass(w.lookup))
		}
		if snap.characters {
			passes = append(passes, annotate.NewCharacterPass(w.lookup))
		}
		annotate.Run(ctx, m, passes...)
	}

	if m.Status == intel.StatusClear && len(m.Systems()) == 0 {
		if source := w.findRecentRequest(m); source != nil {
			m.InheritSystems(source)
			for _, name := range m.Systems() {
				if sys := snap.graph.System(name); sys != nil {
					sys.AddMessage(m)
				}
			}
		}
	}

	w.sink.MessageUpdated(m)
}

// findRecentRequest searches the worker's own history, most recent
// first, for a request that named systems.
func (w *Worker) findRecentRequest(m *intel.Message) *intel.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	scanned := 0
	for i := len(w.recent) - 1; i >= 0 && scanned < backfillDepth; i-- {
		candidate := w.recent[i]
		if candidate == m {
			continue
		}
		scanned++
		if candidate.Room != m.Room {
			continue
		}
		if candidate.Status == intel.StatusRequest && len(candidate.Systems()) > 0 {
			return candidate
		}
	}
	return nil
}

func (w *Worker) remember(m *intel.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recent = append(w.recent, m)
	if len(w.recent) > recentLimit {
		w.recent = w.recent[len(w.recent)-recentLimit:]
	}
}
