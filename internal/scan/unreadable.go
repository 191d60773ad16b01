package scan

import (
	"os"
	"sync"

	"github.com/twinscan/twinscan/internal/store"
)

// UnreadableCache is the in-memory view of the unreadable-file cache for
// one scan run. A cached verdict is honored only while path, mtime and size
// all still match the live file; any mismatch means "re-check this file".
type UnreadableCache struct {
	mu      sync.Mutex
	entries map[string]store.UnreadableEntry
	added   []store.UnreadableEntry
}

// NewUnreadableCache wraps entries loaded from the store.
func NewUnreadableCache(entries map[string]store.UnreadableEntry) *UnreadableCache {
	if entries == nil {
		entries = make(map[string]store.UnreadableEntry)
	}
	return &UnreadableCache{entries: entries}
}

// ShouldSkip reports whether the file is a known-bad, unchanged file.
func (c *UnreadableCache) ShouldSkip(path string, mtime, size int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	return ok && e.MTime == mtime && e.Size == size
}

// MarkBad records newly discovered unreadable paths. Each path is
// re-verified to still exist before caching: a file that vanished mid-scan
// must not be memoized with a stale signature.
func (c *UnreadableCache) MarkBad(paths []string) {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		e := store.UnreadableEntry{Path: p, MTime: info.ModTime().Unix(), Size: info.Size()}
		c.mu.Lock()
		c.entries[p] = e
		c.added = append(c.added, e)
		c.mu.Unlock()
	}
}

// NewEntries returns the entries added during this run, for persisting.
func (c *UnreadableCache) NewEntries() []store.UnreadableEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]store.UnreadableEntry, len(c.added))
	copy(out, c.added)
	return out
}
