// Package results owns the post-scan view of duplicate groups: the
// selection set for bulk deletion, per-group dismissal and algorithm
// feedback, stale-result tracking, and the incremental snapshot updates
// performed after deletions.
package results

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/twinscan/twinscan/internal/catalog"
	"github.com/twinscan/twinscan/internal/events"
	"github.com/twinscan/twinscan/internal/finder"
	"github.com/twinscan/twinscan/internal/scan"
	"github.com/twinscan/twinscan/internal/store"
)

// Deleter executes the removal of one file. The default implementation
// moves files to the trash rather than unlinking them.
type Deleter interface {
	Discard(ctx context.Context, path string) error
}

// StaleInfo stamps where the displayed results came from, so the UI can say
// "these results are from an earlier scan" once assumptions change.
type StaleInfo struct {
	Timestamp time.Time `json:"timestamp"`
	ScopeType string    `json:"scope_type"`
}

// DeleteReport separates outcomes of one delete execution: files actually
// removed, files that had already vanished from disk, and files whose
// removal failed. The result set is updated only for confirmed deletions.
type DeleteReport struct {
	Deleted    int   `json:"deleted"`
	Vanished   int   `json:"vanished"`
	Failed     int   `json:"failed"`
	BytesFreed int64 `json:"bytes_freed"`
}

// Manager is the consumer-side state machine over the scan broadcaster.
type Manager struct {
	mu      sync.Mutex
	store   *store.Store
	deleter Deleter
	ack     func()

	groups      []finder.Group
	unscannable []string
	info        *StaleInfo
	stale       bool
	selected    map[string]struct{}
}

// NewManager creates a Manager. ack is invoked after a terminal scan state
// has been consumed (it returns the broadcaster to idle); it may be nil.
func NewManager(st *store.Store, deleter Deleter, ack func()) *Manager {
	return &Manager{
		store:    st,
		deleter:  deleter,
		ack:      ack,
		selected: make(map[string]struct{}),
	}
}

// Run consumes broadcaster states and bus events until ctx is cancelled.
// It never blocks the scan: both channels are fed by non-blocking writers.
func (m *Manager) Run(ctx context.Context, states <-chan scan.State, bus <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-states:
			if !ok {
				return
			}
			m.HandleState(ctx, s)
		case e, ok := <-bus:
			if !ok {
				return
			}
			if _, changed := e.(events.FolderChanged); changed {
				m.MarkStale()
			}
		}
	}
}

// HandleState applies one broadcaster transition.
func (m *Manager) HandleState(ctx context.Context, s scan.State) {
	switch s.Phase {
	case scan.PhaseScanning:
		// An observer attaching mid-scan shows the last snapshot behind the
		// progress indicator instead of a blank screen.
		if s.ShowStaleWhileScanning && !m.hasResults() {
			if err := m.FallbackLoad(ctx); err != nil {
				slog.Warn("fallback load during scan", "error", err)
			}
		}
	case scan.PhaseComplete:
		m.adopt(s.Result)
		m.acknowledge()
	case scan.PhaseCancelled, scan.PhaseError:
		// Show the last valid snapshot rather than an empty screen.
		if err := m.FallbackLoad(ctx); err != nil {
			slog.Warn("fallback load after aborted scan", "error", err)
		}
		m.acknowledge()
	}
}

func (m *Manager) acknowledge() {
	if m.ack != nil {
		m.ack()
	}
}

func (m *Manager) hasResults() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info != nil
}

func (m *Manager) adopt(res *store.ScanResult) {
	if res == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups = res.Groups
	m.unscannable = res.Unscannable
	m.info = &StaleInfo{Timestamp: res.Timestamp, ScopeType: res.ScopeType}
	m.stale = false
	m.selected = make(map[string]struct{})
}

// FallbackLoad loads the last persisted snapshot into the view. A missing
// snapshot leaves the view empty; it is not an error.
func (m *Manager) FallbackLoad(ctx context.Context) error {
	res, err := m.store.LoadLatest(ctx)
	if err != nil {
		return fmt.Errorf("load last snapshot: %w", err)
	}
	if res == nil {
		return nil
	}
	m.adopt(res)
	return nil
}

// MarkStale flags that the filesystem (or configuration) may no longer
// match the displayed results. Idempotent.
func (m *Manager) MarkStale() {
	m.mu.Lock()
	m.stale = true
	m.mu.Unlock()
}

// ── view ────────────────────────────────────────────────────────────────────

// View is a consistent snapshot of the current result state for rendering.
type View struct {
	Groups           []finder.Group `json:"groups"`
	Unscannable      []string       `json:"unscannable"`
	UnscannableCount int            `json:"unscannable_count"`
	Info             *StaleInfo     `json:"stale_info"`
	Stale            bool           `json:"stale"`
	SelectedIDs      []string       `json:"selected_ids"`
	ReclaimableBytes int64          `json:"reclaimable_bytes"`
}

// Snapshot returns the current view.
func (m *Manager) Snapshot() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := View{
		Groups:           append([]finder.Group(nil), m.groups...),
		Unscannable:      append([]string(nil), m.unscannable...),
		UnscannableCount: len(m.unscannable),
		Info:             m.info,
		Stale:            m.stale,
		ReclaimableBytes: m.reclaimableLocked(),
	}
	for id := range m.selected {
		v.SelectedIDs = append(v.SelectedIDs, id)
	}
	return v
}

// reclaimableLocked recomputes the selected byte total from the live groups,
// never from stale data. Caller holds m.mu.
func (m *Manager) reclaimableLocked() int64 {
	var total int64
	for _, g := range m.groups {
		for _, r := range g.Records {
			if _, ok := m.selected[r.ID]; ok {
				total += r.Size
			}
		}
	}
	return total
}

// Contains reports whether id is a member of any group in the current view.
// The thumbnail endpoint uses this to refuse paths outside the results.
func (m *Manager) Contains(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.containsLocked(id)
}

func (m *Manager) containsLocked(id string) bool {
	for _, g := range m.groups {
		for _, r := range g.Records {
			if r.ID == id {
				return true
			}
		}
	}
	return false
}

func (m *Manager) findGroupLocked(uniqueID string) (int, bool) {
	for i, g := range m.groups {
		if g.UniqueID == uniqueID {
			return i, true
		}
	}
	return 0, false
}

// ── selection model ─────────────────────────────────────────────────────────

// ErrUnknownTarget is returned for ids/groups not present in the live view.
var ErrUnknownTarget = fmt.Errorf("not present in current results")

// Toggle flips the selection of a single record id.
func (m *Manager) Toggle(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.containsLocked(id) {
		return fmt.Errorf("record %q: %w", id, ErrUnknownTarget)
	}
	if _, ok := m.selected[id]; ok {
		delete(m.selected, id)
	} else {
		m.selected[id] = struct{}{}
	}
	return nil
}

// ToggleGroup selects all members of a group, or deselects them all when
// every member is already selected.
func (m *Manager) ToggleGroup(uniqueID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.findGroupLocked(uniqueID)
	if !ok {
		return fmt.Errorf("group %q: %w", uniqueID, ErrUnknownTarget)
	}
	g := m.groups[i]

	allSelected := true
	for _, r := range g.Records {
		if _, ok := m.selected[r.ID]; !ok {
			allSelected = false
			break
		}
	}
	for _, r := range g.Records {
		if allSelected {
			delete(m.selected, r.ID)
		} else {
			m.selected[r.ID] = struct{}{}
		}
	}
	return nil
}

// KeepOne selects every member of the group except one: the oldest when
// keepOldest is true, otherwise the newest. Ordering is by record timestamp
// with the id as tie-break, so exactly one survivor is always kept.
func (m *Manager) KeepOne(uniqueID string, keepOldest bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.findGroupLocked(uniqueID)
	if !ok {
		return fmt.Errorf("group %q: %w", uniqueID, ErrUnknownTarget)
	}
	m.keepOneLocked(m.groups[i], keepOldest)
	return nil
}

// keepOneLocked returns the number of records newly added to the selection;
// deselecting the kept member does not count against it.
func (m *Manager) keepOneLocked(g finder.Group, keepOldest bool) int {
	sorted := append([]catalog.Record(nil), g.Records...)
	catalog.SortByTimeThenID(sorted)

	keep := 0
	if !keepOldest {
		keep = len(sorted) - 1
	}
	added := 0
	for i, r := range sorted {
		if i == keep {
			delete(m.selected, r.ID)
			continue
		}
		if _, ok := m.selected[r.ID]; !ok {
			m.selected[r.ID] = struct{}{}
			added++
		}
	}
	return added
}

// KeepOldestAcrossExact marks, in every exact group, all members except the
// oldest. Similar groups are left alone: only bit-identical copies are safe
// to bulk-delete. Returns the number of records newly selected; zero means
// there was nothing to do.
func (m *Manager) KeepOldestAcrossExact() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	added := 0
	for _, g := range m.groups {
		if g.Kind != finder.KindExact {
			continue
		}
		added += m.keepOneLocked(g, true)
	}
	return added
}

// ── delete execution ────────────────────────────────────────────────────────

// DeleteSelected removes every selected file. Each record is re-validated
// against the disk immediately before removal; files that already vanished
// are counted separately. The snapshot is then rebuilt with deleted ids
// removed, groups that fall to one member discarded, and the original
// timestamp/scope preserved — a deletion mutates an existing scan's
// results, it is not a new scan.
func (m *Manager) DeleteSelected(ctx context.Context) (DeleteReport, error) {
	m.mu.Lock()
	targets := make(map[string]int64, len(m.selected))
	for _, g := range m.groups {
		for _, r := range g.Records {
			if _, ok := m.selected[r.ID]; ok {
				targets[r.ID] = r.Size
			}
		}
	}
	m.mu.Unlock()

	var report DeleteReport
	deleted := make(map[string]struct{}, len(targets))
	for path, size := range targets {
		if ctx.Err() != nil {
			break
		}
		if _, err := os.Stat(path); err != nil {
			report.Vanished++
			continue
		}
		if err := m.deleter.Discard(ctx, path); err != nil {
			slog.Warn("delete failed", "path", path, "error", err)
			report.Failed++
			continue
		}
		deleted[path] = struct{}{}
		report.Deleted++
		report.BytesFreed += size
	}

	if len(deleted) == 0 {
		return report, nil
	}

	m.mu.Lock()
	m.groups = removeRecords(m.groups, deleted)
	for id := range deleted {
		delete(m.selected, id)
	}
	groups := append([]finder.Group(nil), m.groups...)
	unscannable := append([]string(nil), m.unscannable...)
	m.mu.Unlock()

	if err := m.store.ReplaceGroups(ctx, groups, unscannable); err != nil {
		return report, fmt.Errorf("persist updated snapshot: %w", err)
	}
	return report, nil
}

// removeRecords drops the given ids from all groups. A group whose
// membership falls below two ceases to exist; a group whose membership
// changed gets a recomputed composition id (it is a different logical set).
func removeRecords(groups []finder.Group, ids map[string]struct{}) []finder.Group {
	out := make([]finder.Group, 0, len(groups))
	for _, g := range groups {
		remaining := make([]catalog.Record, 0, len(g.Records))
		for _, r := range g.Records {
			if _, gone := ids[r.ID]; !gone {
				remaining = append(remaining, r)
			}
		}
		if len(remaining) < 2 {
			continue
		}
		if len(remaining) != len(g.Records) {
			memberIDs := make([]string, len(remaining))
			for i, r := range remaining {
				memberIDs[i] = r.ID
			}
			g.CompositionID = finder.CompositionID(memberIDs)
		}
		g.Records = remaining
		out = append(out, g)
	}
	return out
}

// ── feedback operations ─────────────────────────────────────────────────────

// HideGroup dismisses a group: its composition id is recorded so future
// scans reproducing the same member set keep it hidden. A later group with
// different membership has a different composition id and reappears.
func (m *Manager) HideGroup(ctx context.Context, uniqueID string) error {
	m.mu.Lock()
	i, ok := m.findGroupLocked(uniqueID)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("group %q: %w", uniqueID, ErrUnknownTarget)
	}
	g := m.groups[i]
	m.mu.Unlock()

	if err := m.store.HideGroupID(ctx, g.CompositionID); err != nil {
		return err
	}
	m.dropGroup(uniqueID)
	return nil
}

// FlagIncorrect records a pairwise denial for every member pair of the
// group and removes it from view; future similarity runs consult the
// denial registry and will not reproduce the pairing.
func (m *Manager) FlagIncorrect(ctx context.Context, uniqueID string) error {
	m.mu.Lock()
	i, ok := m.findGroupLocked(uniqueID)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("group %q: %w", uniqueID, ErrUnknownTarget)
	}
	g := m.groups[i]
	m.mu.Unlock()

	var pairs [][2]string
	for a := 0; a < len(g.Records); a++ {
		for b := a + 1; b < len(g.Records); b++ {
			pairs = append(pairs, [2]string{g.Records[a].ID, g.Records[b].ID})
		}
	}
	if err := m.store.AddDenials(ctx, pairs); err != nil {
		return err
	}
	m.dropGroup(uniqueID)
	return nil
}

func (m *Manager) dropGroup(uniqueID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, g := range m.groups {
		if g.UniqueID != uniqueID {
			continue
		}
		for _, r := range g.Records {
			delete(m.selected, r.ID)
		}
		m.groups = append(m.groups[:i], m.groups[i+1:]...)
		return
	}
}
