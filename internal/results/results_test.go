package results_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/twinscan/twinscan/internal/catalog"
	"github.com/twinscan/twinscan/internal/db"
	"github.com/twinscan/twinscan/internal/finder"
	"github.com/twinscan/twinscan/internal/results"
	"github.com/twinscan/twinscan/internal/scan"
	"github.com/twinscan/twinscan/internal/store"
)

func mustOpenStore(t *testing.T) *store.Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(database)
}

// fakeDeleter unlinks files directly; paths in fail return an error instead.
type fakeDeleter struct {
	fail map[string]bool
}

func (d *fakeDeleter) Discard(_ context.Context, path string) error {
	if d.fail[path] {
		return errors.New("simulated delete failure")
	}
	return os.Remove(path)
}

func tempRecord(t *testing.T, dir, name string, size int, mtime time.Time) catalog.Record {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	return catalog.Record{ID: p, Size: int64(size), ModTime: mtime}
}

func newManagerWithResult(t *testing.T, st *store.Store, deleter results.Deleter, res *store.ScanResult) *results.Manager {
	t.Helper()
	if err := st.SaveResult(context.Background(), res); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	m := results.NewManager(st, deleter, nil)
	m.HandleState(context.Background(), scan.State{Phase: scan.PhaseComplete, Result: res})
	return m
}

func TestManager_AdoptsCompletedScan(t *testing.T) {
	st := mustOpenStore(t)
	acked := 0
	m := results.NewManager(st, &fakeDeleter{}, func() { acked++ })

	res := &store.ScanResult{
		Groups: []finder.Group{finder.NewGroup(finder.KindExact, []catalog.Record{
			{ID: "/a", Size: 10, ModTime: time.Unix(1, 0)},
			{ID: "/b", Size: 10, ModTime: time.Unix(2, 0)},
		})},
		Unscannable: []string{"/bad"},
		ScopeType:   "full",
		Timestamp:   time.Unix(100, 0).UTC(),
	}
	m.MarkStale()
	m.HandleState(context.Background(), scan.State{Phase: scan.PhaseComplete, Result: res})

	v := m.Snapshot()
	if len(v.Groups) != 1 || v.UnscannableCount != 1 {
		t.Errorf("view: got %d groups, %d unscannable", len(v.Groups), v.UnscannableCount)
	}
	if v.Stale {
		t.Error("fresh results must not be stale")
	}
	if v.Info == nil || !v.Info.Timestamp.Equal(res.Timestamp) {
		t.Errorf("info: got %+v", v.Info)
	}
	if acked != 1 {
		t.Errorf("ack calls: got %d, want 1", acked)
	}
}

func TestManager_FallsBackToSnapshotAfterAbortedScan(t *testing.T) {
	st := mustOpenStore(t)
	res := &store.ScanResult{
		Groups: []finder.Group{finder.NewGroup(finder.KindExact, []catalog.Record{
			{ID: "/a", Size: 10, ModTime: time.Unix(1, 0)},
			{ID: "/b", Size: 10, ModTime: time.Unix(2, 0)},
		})},
		ScopeType: "full",
		Timestamp: time.Unix(100, 0).UTC(),
	}
	if err := st.SaveResult(context.Background(), res); err != nil {
		t.Fatal(err)
	}

	acked := 0
	m := results.NewManager(st, &fakeDeleter{}, func() { acked++ })
	m.HandleState(context.Background(), scan.State{Phase: scan.PhaseCancelled})

	if v := m.Snapshot(); len(v.Groups) != 1 {
		t.Error("cancelled scan should fall back to the last good snapshot")
	}
	if acked != 1 {
		t.Errorf("ack calls: got %d, want 1", acked)
	}
}

func TestManager_MidScanObserverLoadsStaleSnapshot(t *testing.T) {
	st := mustOpenStore(t)
	res := &store.ScanResult{
		Groups: []finder.Group{finder.NewGroup(finder.KindExact, []catalog.Record{
			{ID: "/a", Size: 10, ModTime: time.Unix(1, 0)},
			{ID: "/b", Size: 10, ModTime: time.Unix(2, 0)},
		})},
		ScopeType: "full",
		Timestamp: time.Unix(100, 0).UTC(),
	}
	if err := st.SaveResult(context.Background(), res); err != nil {
		t.Fatal(err)
	}

	m := results.NewManager(st, &fakeDeleter{}, nil)
	m.HandleState(context.Background(), scan.State{
		Phase:                  scan.PhaseScanning,
		Progress:               0.3,
		ShowStaleWhileScanning: true,
	})

	if v := m.Snapshot(); len(v.Groups) != 1 {
		t.Error("observer attaching mid-scan should see the previous snapshot")
	}
}

func TestManager_SelectionToggles(t *testing.T) {
	st := mustOpenStore(t)
	dir := t.TempDir()
	g := finder.NewGroup(finder.KindExact, []catalog.Record{
		tempRecord(t, dir, "a.jpg", 10, time.Unix(1, 0)),
		tempRecord(t, dir, "b.jpg", 20, time.Unix(2, 0)),
	})
	m := newManagerWithResult(t, st, &fakeDeleter{}, &store.ScanResult{
		Groups: []finder.Group{g}, ScopeType: "full", Timestamp: time.Unix(1, 0).UTC(),
	})

	a := g.Records[0].ID
	if err := m.Toggle(a); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if v := m.Snapshot(); len(v.SelectedIDs) != 1 || v.ReclaimableBytes != 10 {
		t.Errorf("after select: %v, %d bytes", v.SelectedIDs, v.ReclaimableBytes)
	}
	if err := m.Toggle(a); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if v := m.Snapshot(); len(v.SelectedIDs) != 0 {
		t.Error("second toggle should deselect")
	}

	if err := m.Toggle("/not/in/results.jpg"); !errors.Is(err, results.ErrUnknownTarget) {
		t.Errorf("unknown id: got %v, want ErrUnknownTarget", err)
	}
}

func TestManager_ToggleGroup(t *testing.T) {
	st := mustOpenStore(t)
	dir := t.TempDir()
	g := finder.NewGroup(finder.KindExact, []catalog.Record{
		tempRecord(t, dir, "a.jpg", 10, time.Unix(1, 0)),
		tempRecord(t, dir, "b.jpg", 10, time.Unix(2, 0)),
		tempRecord(t, dir, "c.jpg", 10, time.Unix(3, 0)),
	})
	m := newManagerWithResult(t, st, &fakeDeleter{}, &store.ScanResult{
		Groups: []finder.Group{g}, ScopeType: "full", Timestamp: time.Unix(1, 0).UTC(),
	})

	// Partial selection: toggling the group selects everything.
	if err := m.Toggle(g.Records[0].ID); err != nil {
		t.Fatal(err)
	}
	if err := m.ToggleGroup(g.UniqueID); err != nil {
		t.Fatal(err)
	}
	if v := m.Snapshot(); len(v.SelectedIDs) != 3 {
		t.Errorf("partial toggle-group: got %d selected, want all 3", len(v.SelectedIDs))
	}

	// Fully selected: toggling again clears the group.
	if err := m.ToggleGroup(g.UniqueID); err != nil {
		t.Fatal(err)
	}
	if v := m.Snapshot(); len(v.SelectedIDs) != 0 {
		t.Error("toggle-group on a fully selected group should deselect all")
	}

	if err := m.ToggleGroup("nope"); !errors.Is(err, results.ErrUnknownTarget) {
		t.Errorf("unknown group: got %v", err)
	}
}

func TestManager_KeepOne(t *testing.T) {
	st := mustOpenStore(t)
	dir := t.TempDir()
	oldest := tempRecord(t, dir, "oldest.jpg", 10, time.Unix(10, 0))
	middle := tempRecord(t, dir, "middle.jpg", 10, time.Unix(20, 0))
	newest := tempRecord(t, dir, "newest.jpg", 10, time.Unix(30, 0))
	g := finder.NewGroup(finder.KindExact, []catalog.Record{middle, newest, oldest})

	m := newManagerWithResult(t, st, &fakeDeleter{}, &store.ScanResult{
		Groups: []finder.Group{g}, ScopeType: "full", Timestamp: time.Unix(1, 0).UTC(),
	})

	if err := m.KeepOne(g.UniqueID, true); err != nil {
		t.Fatalf("KeepOne: %v", err)
	}
	selected := m.Snapshot().SelectedIDs
	sort.Strings(selected)
	want := []string{middle.ID, newest.ID}
	sort.Strings(want)
	if len(selected) != 2 || selected[0] != want[0] || selected[1] != want[1] {
		t.Errorf("keep oldest: selected %v, want %v", selected, want)
	}

	// Flip to keep the newest instead: the selection is recomputed, not
	// accumulated.
	if err := m.KeepOne(g.UniqueID, false); err != nil {
		t.Fatal(err)
	}
	selected = m.Snapshot().SelectedIDs
	for _, id := range selected {
		if id == newest.ID {
			t.Error("keep newest must not select the newest copy")
		}
	}
	if len(selected) != 2 {
		t.Errorf("keep newest: got %d selected, want 2", len(selected))
	}
}

func TestManager_KeepOldestAcrossExactSkipsSimilar(t *testing.T) {
	st := mustOpenStore(t)
	dir := t.TempDir()
	exact := finder.NewGroup(finder.KindExact, []catalog.Record{
		tempRecord(t, dir, "e1.jpg", 10, time.Unix(1, 0)),
		tempRecord(t, dir, "e2.jpg", 10, time.Unix(2, 0)),
	})
	similar := finder.NewGroup(finder.KindSimilar, []catalog.Record{
		tempRecord(t, dir, "s1.jpg", 10, time.Unix(1, 0)),
		tempRecord(t, dir, "s2.jpg", 10, time.Unix(2, 0)),
	})
	m := newManagerWithResult(t, st, &fakeDeleter{}, &store.ScanResult{
		Groups: []finder.Group{exact, similar}, ScopeType: "full", Timestamp: time.Unix(1, 0).UTC(),
	})

	added := m.KeepOldestAcrossExact()
	if added != 1 {
		t.Errorf("added: got %d, want 1 (one redundant exact copy)", added)
	}
	selected := m.Snapshot().SelectedIDs
	if len(selected) != 1 {
		t.Fatalf("selected: got %v", selected)
	}
	if filepath.Base(selected[0]) != "e2.jpg" {
		t.Errorf("selected %q; only the newer exact copy should be marked", selected[0])
	}
}

func TestManager_KeepOldestAcrossExactCountsAdditions(t *testing.T) {
	st := mustOpenStore(t)
	dir := t.TempDir()
	oldest := tempRecord(t, dir, "oldest.jpg", 10, time.Unix(1, 0))
	g := finder.NewGroup(finder.KindExact, []catalog.Record{
		oldest,
		tempRecord(t, dir, "b.jpg", 10, time.Unix(2, 0)),
		tempRecord(t, dir, "c.jpg", 10, time.Unix(3, 0)),
	})
	m := newManagerWithResult(t, st, &fakeDeleter{}, &store.ScanResult{
		Groups: []finder.Group{g}, ScopeType: "full", Timestamp: time.Unix(1, 0).UTC(),
	})

	// The kept member starts out selected; it is deselected by the bulk
	// operation and must not offset the count of new selections.
	if err := m.Toggle(oldest.ID); err != nil {
		t.Fatal(err)
	}

	if added := m.KeepOldestAcrossExact(); added != 2 {
		t.Errorf("added: got %d, want 2 newly selected copies", added)
	}
	selected := m.Snapshot().SelectedIDs
	if len(selected) != 2 {
		t.Fatalf("selected: got %v", selected)
	}
	for _, id := range selected {
		if id == oldest.ID {
			t.Error("the oldest copy must be deselected")
		}
	}
}

func TestManager_DeleteSelected(t *testing.T) {
	st := mustOpenStore(t)
	dir := t.TempDir()
	a := tempRecord(t, dir, "a.jpg", 100, time.Unix(1, 0))
	b := tempRecord(t, dir, "b.jpg", 100, time.Unix(2, 0))
	c := tempRecord(t, dir, "c.jpg", 100, time.Unix(3, 0))
	g := finder.NewGroup(finder.KindExact, []catalog.Record{a, b, c})

	m := newManagerWithResult(t, st, &fakeDeleter{}, &store.ScanResult{
		Groups: []finder.Group{g}, ScopeType: "full", Timestamp: time.Unix(777, 0).UTC(),
	})

	if err := m.Toggle(c.ID); err != nil {
		t.Fatal(err)
	}
	report, err := m.DeleteSelected(context.Background())
	if err != nil {
		t.Fatalf("DeleteSelected: %v", err)
	}
	if report.Deleted != 1 || report.BytesFreed != 100 {
		t.Errorf("report: %+v", report)
	}
	if _, err := os.Stat(c.ID); !os.IsNotExist(err) {
		t.Error("file should be gone from disk")
	}

	v := m.Snapshot()
	if len(v.Groups) != 1 || len(v.Groups[0].Records) != 2 {
		t.Fatalf("groups after delete: %+v", v.Groups)
	}
	if v.Groups[0].CompositionID == g.CompositionID {
		t.Error("changed membership must get a new composition id")
	}
	if v.Groups[0].UniqueID != g.UniqueID {
		t.Error("the group's unique id must survive a partial delete")
	}
	if len(v.SelectedIDs) != 0 {
		t.Error("deleted files must leave the selection")
	}

	// The persisted snapshot was patched in place, not re-stamped.
	persisted, err := st.LoadLatest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !persisted.Timestamp.Equal(time.Unix(777, 0).UTC()) {
		t.Error("deletion must not change the scan timestamp")
	}
	if len(persisted.Groups) != 1 || len(persisted.Groups[0].Records) != 2 {
		t.Errorf("persisted groups: %+v", persisted.Groups)
	}
}

func TestManager_DeleteDropsGroupsBelowTwoMembers(t *testing.T) {
	st := mustOpenStore(t)
	dir := t.TempDir()
	a := tempRecord(t, dir, "a.jpg", 10, time.Unix(1, 0))
	b := tempRecord(t, dir, "b.jpg", 10, time.Unix(2, 0))
	g := finder.NewGroup(finder.KindExact, []catalog.Record{a, b})

	m := newManagerWithResult(t, st, &fakeDeleter{}, &store.ScanResult{
		Groups: []finder.Group{g}, ScopeType: "full", Timestamp: time.Unix(1, 0).UTC(),
	})

	if err := m.Toggle(b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.DeleteSelected(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v := m.Snapshot(); len(v.Groups) != 0 {
		t.Error("a group with one remaining member is no longer a duplicate group")
	}
}

func TestManager_DeleteSeparatesVanishedAndFailed(t *testing.T) {
	st := mustOpenStore(t)
	dir := t.TempDir()
	a := tempRecord(t, dir, "a.jpg", 10, time.Unix(1, 0))
	b := tempRecord(t, dir, "b.jpg", 10, time.Unix(2, 0))
	c := tempRecord(t, dir, "c.jpg", 10, time.Unix(3, 0))
	g := finder.NewGroup(finder.KindExact, []catalog.Record{a, b, c})

	deleter := &fakeDeleter{fail: map[string]bool{b.ID: true}}
	m := newManagerWithResult(t, st, deleter, &store.ScanResult{
		Groups: []finder.Group{g}, ScopeType: "full", Timestamp: time.Unix(1, 0).UTC(),
	})

	for _, id := range []string{a.ID, b.ID, c.ID} {
		if err := m.Toggle(id); err != nil {
			t.Fatal(err)
		}
	}
	// a vanishes between selection and execution.
	if err := os.Remove(a.ID); err != nil {
		t.Fatal(err)
	}

	report, err := m.DeleteSelected(context.Background())
	if err != nil {
		t.Fatalf("DeleteSelected: %v", err)
	}
	if report.Deleted != 1 || report.Vanished != 1 || report.Failed != 1 {
		t.Errorf("report: %+v, want one of each", report)
	}
	if report.BytesFreed != 10 {
		t.Errorf("bytes freed: got %d, want only the confirmed deletion counted", report.BytesFreed)
	}
}

func TestManager_HideGroup(t *testing.T) {
	st := mustOpenStore(t)
	dir := t.TempDir()
	g := finder.NewGroup(finder.KindSimilar, []catalog.Record{
		tempRecord(t, dir, "a.jpg", 10, time.Unix(1, 0)),
		tempRecord(t, dir, "b.jpg", 10, time.Unix(2, 0)),
	})
	m := newManagerWithResult(t, st, &fakeDeleter{}, &store.ScanResult{
		Groups: []finder.Group{g}, ScopeType: "full", Timestamp: time.Unix(1, 0).UTC(),
	})

	if err := m.HideGroup(context.Background(), g.UniqueID); err != nil {
		t.Fatalf("HideGroup: %v", err)
	}
	if v := m.Snapshot(); len(v.Groups) != 0 {
		t.Error("hidden group should leave the view")
	}

	hidden, err := st.HiddenGroupIDs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := hidden[g.CompositionID]; !ok {
		t.Error("the composition id should be registered so future scans keep it hidden")
	}

	if err := m.HideGroup(context.Background(), g.UniqueID); !errors.Is(err, results.ErrUnknownTarget) {
		t.Errorf("hiding a gone group: got %v, want ErrUnknownTarget", err)
	}
}

func TestManager_FlagIncorrectRecordsPairwiseDenials(t *testing.T) {
	st := mustOpenStore(t)
	dir := t.TempDir()
	a := tempRecord(t, dir, "a.jpg", 10, time.Unix(1, 0))
	b := tempRecord(t, dir, "b.jpg", 10, time.Unix(2, 0))
	c := tempRecord(t, dir, "c.jpg", 10, time.Unix(3, 0))
	g := finder.NewGroup(finder.KindSimilar, []catalog.Record{a, b, c})

	m := newManagerWithResult(t, st, &fakeDeleter{}, &store.ScanResult{
		Groups: []finder.Group{g}, ScopeType: "full", Timestamp: time.Unix(1, 0).UTC(),
	})

	if err := m.FlagIncorrect(context.Background(), g.UniqueID); err != nil {
		t.Fatalf("FlagIncorrect: %v", err)
	}
	if v := m.Snapshot(); len(v.Groups) != 0 {
		t.Error("flagged group should leave the view")
	}

	d, err := st.Denials(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, pair := range [][2]string{{a.ID, b.ID}, {a.ID, c.ID}, {b.ID, c.ID}} {
		if !d.IsDenied(pair[0], pair[1]) {
			t.Errorf("pair %v should be denied", pair)
		}
	}
}

func TestManager_MarkStale(t *testing.T) {
	st := mustOpenStore(t)
	m := results.NewManager(st, &fakeDeleter{}, nil)

	m.MarkStale()
	if !m.Snapshot().Stale {
		t.Error("view should be stale after MarkStale")
	}
}
