package scan

import (
	"math"
	"sync"
)

// Outer phase weights, out of 100. Hashing dominates wall-clock time by far.
const (
	weightGather  = 8
	weightFilter  = 2
	weightPrepare = 10
	weightHash    = 80

	// hashBase is the fixed percentage accumulated before hashing starts.
	hashBase = weightGather + weightFilter + weightPrepare
)

// ScaledFraction converts inner progress (completed of total) within a
// weighted phase into an overall fraction. base and weight are percentage
// points; the inner share is floored to whole points so progress moves in
// visible steps. Pure function, independent of any UI.
func ScaledFraction(completed, total, weight, base int) float64 {
	if total <= 0 {
		return float64(base+weight) / 100
	}
	if completed > total {
		completed = total
	}
	inner := float64(completed) / float64(total)
	return (float64(base) + math.Floor(inner*float64(weight))) / 100
}

// Tracker accumulates overall scan progress and pushes every update as an
// atomic (fraction, label) pair. Progress is monotonically non-decreasing
// within a run and clamped to [0,1].
type Tracker struct {
	mu      sync.Mutex
	frac    float64
	publish func(fraction float64, label string)
}

// NewTracker creates a Tracker publishing through publish.
func NewTracker(publish func(fraction float64, label string)) *Tracker {
	return &Tracker{publish: publish}
}

// Update raises progress to frac (never lowers it) and publishes.
func (t *Tracker) Update(frac float64, label string) {
	t.mu.Lock()
	if frac < t.frac {
		frac = t.frac
	}
	if frac > 1 {
		frac = 1
	}
	t.frac = frac
	t.mu.Unlock()
	t.publish(frac, label)
}

// GatherDone, FilterDone and PrepareDone mark the coarse pre-hash phases.
func (t *Tracker) GatherDone()  { t.Update(float64(weightGather)/100, "gathering files") }
func (t *Tracker) FilterDone()  { t.Update(float64(weightGather+weightFilter)/100, "filtering files") }
func (t *Tracker) PrepareDone() { t.Update(float64(hashBase)/100, "preparing records") }

// Finish pins progress to exactly 1.0.
func (t *Tracker) Finish() { t.Update(1, "finishing") }

// Fraction returns the current overall fraction.
func (t *Tracker) Fraction() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frac
}

// HashTracker is the inner tracker for the hashing sub-phases, rescaled
// into the outer Tracker. Its unit count is itemCount × enabled finders:
// every item is counted once per detector.
type HashTracker struct {
	mu    sync.Mutex
	done  int
	total int
	outer *Tracker
}

// NewHashTracker creates the inner tracker for items records across
// finders detectors.
func NewHashTracker(outer *Tracker, items, finders int) *HashTracker {
	return &HashTracker{outer: outer, total: items * finders}
}

// Tick records one completed unit and republishes the rescaled outer
// fraction under label (whatever sub-phase last reported).
func (h *HashTracker) Tick(label string) {
	h.mu.Lock()
	h.done++
	done := h.done
	h.mu.Unlock()
	h.outer.Update(ScaledFraction(done, h.total, weightHash, hashBase), label)
}
