package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher publishes FolderChanged events for filesystem activity under the
// configured roots. It watches the root directories themselves (not the
// whole tree): the consumers only need a "something changed since the last
// scan" hint, not a precise delta.
type Watcher struct {
	bus     *Bus
	watcher *fsnotify.Watcher
}

// NewWatcher creates a Watcher over roots. Roots that cannot be watched are
// logged and skipped.
func NewWatcher(bus *Bus, roots []string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	for _, root := range roots {
		if err := fw.Add(root); err != nil {
			slog.Warn("watch root failed", "root", root, "error", err)
		}
	}
	return &Watcher{bus: bus, watcher: fw}, nil
}

// Run pumps fsnotify events into the bus until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) != 0 {
				w.bus.Publish(FolderChanged{Path: ev.Name})
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}
