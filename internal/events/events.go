// Package events is a small typed event bus for cross-component
// notifications, plus a filesystem watcher that feeds it.
package events

import "sync"

// Event is the sum type carried by the bus.
type Event interface{ event() }

// FolderChanged signals that the contents of a watched folder changed
// since the last scan. Consumers apply it idempotently.
type FolderChanged struct {
	Path string
}

func (FolderChanged) event() {}

// ScopeListPruned signals that invalid entries were removed from a
// configured include/exclude list. Count is how many were dropped.
type ScopeListPruned struct {
	Count int
}

func (ScopeListPruned) event() {}

// Bus fans events out to subscribers. Publishing never blocks: each
// subscriber has a buffered channel and events are dropped for subscribers
// that fall too far behind (consumers treat events as hints, not deltas
// that must all arrive).
type Bus struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber. The returned cancel function must
// be called to detach; the channel is closed on cancel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers e to every subscriber that has buffer room.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
