package scan

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned when a scan is started while one is in progress.
var ErrAlreadyRunning = errors.New("a scan is already in progress")

// ErrNoActiveScan is returned when cancel is called with no scan running.
var ErrNoActiveScan = errors.New("no scan is currently running")

// ActiveScan holds live information about the running scan.
type ActiveScan struct {
	StartedAt time.Time
	Options   Options
}

// Manager enforces the single-active-scan invariant and exposes the
// start/cancel control surface. A start request while running is rejected,
// not queued; cancelling while idle is rejected. Safe for concurrent use.
type Manager struct {
	mu   sync.Mutex
	orch *Orchestrator
	pub  *Publisher

	active   *ActiveScan
	cancelFn context.CancelCauseFunc
}

// NewManager creates a Manager driving orch. pub must be the same write
// handle the orchestrator publishes through, so Acknowledge can reset the
// cell between runs.
func NewManager(orch *Orchestrator, pub *Publisher) *Manager {
	return &Manager{orch: orch, pub: pub}
}

// Start launches an asynchronous scan, or returns ErrAlreadyRunning.
// The scan outlives any caller; parentCtx is only the shutdown root
// (cancelling it cancels the run, e.g. on process exit).
func (m *Manager) Start(parentCtx context.Context, opts Options) (*ActiveScan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrAlreadyRunning
	}

	scanCtx, cancel := context.WithCancelCause(parentCtx)
	active := &ActiveScan{StartedAt: time.Now(), Options: opts}
	m.active = active
	m.cancelFn = cancel

	go func() {
		m.orch.Run(scanCtx, opts)
		cancel(nil)

		m.mu.Lock()
		m.active = nil
		m.cancelFn = nil
		m.mu.Unlock()
	}()

	snap := *active
	return &snap, nil
}

// Cancel stops the running scan with a human-readable reason, or returns
// ErrNoActiveScan. Cancellation is cooperative: the run winds down at its
// next phase boundary and still executes its cleanup exactly once.
func (m *Manager) Cancel(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return ErrNoActiveScan
	}
	if reason == "" {
		reason = "cancelled by user"
	}
	m.cancelFn(errors.New(reason))
	return nil
}

// Active returns a snapshot of the running scan, or nil when idle.
func (m *Manager) Active() *ActiveScan {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	snap := *m.active
	return &snap
}

// Acknowledge returns the broadcaster to idle after a terminal state has
// been consumed. The guard reads the published state rather than m.active:
// a consumer can observe the terminal state while the run's goroutine is
// still winding down, and the acknowledgement must not be lost to that
// window. A non-terminal state (a scan in progress) is left untouched.
func (m *Manager) Acknowledge() {
	m.pub.IdleIfTerminal()
}
