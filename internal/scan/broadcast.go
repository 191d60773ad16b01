package scan

import (
	"sync"

	"github.com/twinscan/twinscan/internal/store"
)

// Phase is the coarse state of the background scan.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseScanning  Phase = "scanning"
	PhaseComplete  Phase = "complete"
	PhaseCancelled Phase = "cancelled"
	PhaseError     Phase = "error"
)

// State is the single point of truth shared between the orchestrator (sole
// writer) and any number of observers. Transitions within one run are
// one-directional: idle → scanning → {complete|cancelled|error} → idle.
type State struct {
	Phase    Phase   `json:"phase"`
	Progress float64 `json:"progress"`
	Label    string  `json:"label"`
	// ShowStaleWhileScanning tells observers attaching mid-scan to fetch and
	// display the last persisted snapshot behind the progress indicator.
	ShowStaleWhileScanning bool `json:"show_stale_while_scanning"`
	// Result is set only on PhaseComplete.
	Result *store.ScanResult `json:"-"`
	// Err is set only on PhaseError.
	Err string `json:"error,omitempty"`
}

// Terminal reports whether the state ends a scan run.
func (s State) Terminal() bool {
	switch s.Phase {
	case PhaseComplete, PhaseCancelled, PhaseError:
		return true
	}
	return false
}

// Broadcaster is a process-wide state cell with single-writer discipline:
// reads go through the Broadcaster, writes only through the Publisher
// returned by NewBroadcaster. Readers attach and detach freely without
// affecting the run.
type Broadcaster struct {
	mu   sync.Mutex
	cur  State
	subs map[chan State]struct{}
}

// Publisher is the write handle. Exactly one exists per Broadcaster and it
// belongs to the scan manager/orchestrator.
type Publisher struct {
	b *Broadcaster
}

// NewBroadcaster creates the cell in the idle state and returns it together
// with its sole write handle.
func NewBroadcaster() (*Broadcaster, *Publisher) {
	b := &Broadcaster{
		cur:  State{Phase: PhaseIdle},
		subs: make(map[chan State]struct{}),
	}
	return b, &Publisher{b: b}
}

// Current returns the latest published state. Poll-style readers (the HTTP
// status handler) use this to reconstruct progress when attaching mid-scan.
func (b *Broadcaster) Current() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur
}

// Subscribe returns a channel that receives the current state immediately
// and then every transition in publish order. A subscriber that falls more
// than 64 states behind loses intermediate updates (the writer is never
// blocked); Current() always holds the latest state for resync.
func (b *Broadcaster) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	ch <- b.cur
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

func (p *Publisher) set(s State) {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	p.setLocked(s)
}

func (p *Publisher) setLocked(s State) {
	p.b.cur = s
	for ch := range p.b.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// IdleIfTerminal resets the cell to idle only when the current state is
// terminal, as one atomic check-and-set. An acknowledgement arriving after
// the next run already published progress is dropped instead of erasing it.
func (p *Publisher) IdleIfTerminal() bool {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	if !p.b.cur.Terminal() {
		return false
	}
	p.setLocked(State{Phase: PhaseIdle})
	return true
}

// Scanning publishes a progress update as an atomic (fraction, label) pair.
func (p *Publisher) Scanning(progress float64, label string, showStale bool) {
	p.set(State{
		Phase:                  PhaseScanning,
		Progress:               progress,
		Label:                  label,
		ShowStaleWhileScanning: showStale,
	})
}

// Complete publishes the terminal success state with the final result.
func (p *Publisher) Complete(res *store.ScanResult) {
	p.set(State{Phase: PhaseComplete, Progress: 1, Result: res})
}

// Cancelled publishes the terminal cancelled state.
func (p *Publisher) Cancelled() { p.set(State{Phase: PhaseCancelled}) }

// Error publishes the terminal failure state.
func (p *Publisher) Error(msg string) { p.set(State{Phase: PhaseError, Err: msg}) }
