package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recordTarget struct {
	mu      sync.Mutex
	added   []string
	changed []string
	removed []string
	events  chan string
}

func newRecordTarget() *recordTarget {
	return &recordTarget{events: make(chan string, 64)}
}

func (t *recordTarget) AddLogFile(path string) {
	t.mu.Lock()
	t.added = append(t.added, path)
	t.mu.Unlock()
	t.events <- "add:" + path
}

func (t *recordTarget) FileChanged(path string) {
	t.mu.Lock()
	t.changed = append(t.changed, path)
	t.mu.Unlock()
	t.events <- "change:" + path
}

func (t *recordTarget) RemoveLogFile(path string) {
	t.mu.Lock()
	t.removed = append(t.removed, path)
	t.mu.Unlock()
	t.events <- "remove:" + path
}

func waitEvent(t *testing.T, ch chan string, want string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestWatcherReportsExistingAndNewLogs(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "delve.imperium_20240115_200000_123.txt")
	if err := os.WriteFile(existing, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Non-log files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	target := newRecordTarget()
	w, err := New(dir, target)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := w.Start(ctx); err != nil {
			t.Errorf("start: %v", err)
		}
	}()

	waitEvent(t, target.events, "add:"+existing)

	created := filepath.Join(dir, "Local_20240115_200000_123.txt")
	if err := os.WriteFile(created, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitEvent(t, target.events, "add:"+created)

	f, err := os.OpenFile(created, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("more"); err != nil {
		t.Fatal(err)
	}
	f.Close()
	waitEvent(t, target.events, "change:"+created)

	if err := os.Remove(created); err != nil {
		t.Fatal(err)
	}
	waitEvent(t, target.events, "remove:"+created)

	target.mu.Lock()
	defer target.mu.Unlock()
	for _, path := range target.added {
		if filepath.Ext(path) != ".txt" {
			t.Errorf("non-log file reported: %s", path)
		}
	}
}
