// Package watcher monitors the EVE chat-log directory and feeds
// file events to the ingestion supervisor.
package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Target is the slice of the supervisor the watcher drives.
type Target interface {
	AddLogFile(path string)
	FileChanged(path string)
	RemoveLogFile(path string)
}

// Watcher turns fsnotify events on the log directory into supervisor
// calls. Only .txt files are considered; EVE writes one log per
// channel per session.
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher
	target  Target
}

func New(dir string, target Target) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{dir: dir, watcher: fsw, target: target}, nil
}

// Start registers existing logs and then relays directory events until
// ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	if err := w.scanExisting(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-w.watcher.Errors:
			if err != nil {
				log.Printf("watcher: %v", err)
			}
		case event := <-w.watcher.Events:
			w.handle(event)
		}
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) scanExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !isLog(entry.Name()) {
			continue
		}
		w.target.AddLogFile(filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !isLog(event.Name) {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		w.target.AddLogFile(event.Name)
	}
	if event.Op&fsnotify.Write != 0 {
		w.target.FileChanged(event.Name)
	}
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.target.RemoveLogFile(event.Name)
	}
}

func isLog(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".txt")
}
