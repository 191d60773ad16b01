// Package lease provides a bounded-duration hold used to mark heavy scan
// work as in progress. The hold is the process analogue of a wake-lock:
// acquired once per run with an explicit upper bound so that a crash that
// skips cleanup can never leave the hold stuck forever.
package lease

import (
	"log/slog"
	"sync"
	"time"
)

// Lease is one bounded hold. Release is idempotent.
type Lease struct {
	once  sync.Once
	timer *time.Timer
	done  func()
}

// Release ends the hold. Safe to call multiple times; the auto-expiry timer
// and an explicit Release race harmlessly.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.timer.Stop()
		l.done()
	})
}

// Keeper hands out leases and tracks whether one is active.
type Keeper struct {
	mu     sync.Mutex
	active bool
	tag    string
}

// NewKeeper creates a Keeper.
func NewKeeper() *Keeper { return &Keeper{} }

// Acquire takes a hold for at most d. When d elapses before Release is
// called, the hold self-expires and a warning is logged.
func (k *Keeper) Acquire(d time.Duration, tag string) *Lease {
	k.mu.Lock()
	k.active = true
	k.tag = tag
	k.mu.Unlock()

	slog.Debug("lease acquired", "tag", tag, "max_hold", d)

	l := &Lease{}
	l.done = func() {
		k.mu.Lock()
		k.active = false
		k.tag = ""
		k.mu.Unlock()
		slog.Debug("lease released", "tag", tag)
	}
	l.timer = time.AfterFunc(d, func() {
		slog.Warn("lease expired before release", "tag", tag, "max_hold", d)
		l.Release()
	})
	return l
}

// Active reports whether a lease is currently held and its tag.
func (k *Keeper) Active() (bool, string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active, k.tag
}
