package scan_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/twinscan/twinscan/internal/catalog"
	"github.com/twinscan/twinscan/internal/finder"
	"github.com/twinscan/twinscan/internal/scan"
)

func makeGroup(kind finder.Kind, sizes map[string]int64) finder.Group {
	var records []catalog.Record
	for id, size := range sizes {
		records = append(records, catalog.Record{ID: id, Size: size, ModTime: time.Unix(0, 0)})
	}
	catalog.SortByTimeThenID(records)
	return finder.NewGroup(kind, records)
}

func TestMergeGroups_ExactWinsOverSameComposition(t *testing.T) {
	// The same {a, b} set found by both detectors: the exact verdict is
	// strictly stronger, the approximate one is redundant.
	exact := makeGroup(finder.KindExact, map[string]int64{"/a.jpg": 100, "/b.jpg": 100})
	similar := makeGroup(finder.KindSimilar, map[string]int64{"/a.jpg": 100, "/b.jpg": 100})

	merged := scan.MergeGroups([]finder.Group{exact}, []finder.Group{similar}, nil)
	if len(merged) != 1 {
		t.Fatalf("got %d groups, want 1", len(merged))
	}
	if merged[0].Kind != finder.KindExact {
		t.Errorf("surviving group kind: got %q, want exact", merged[0].Kind)
	}
}

func TestMergeGroups_DifferentCompositionKeepsBoth(t *testing.T) {
	exact := makeGroup(finder.KindExact, map[string]int64{"/a.jpg": 100, "/b.jpg": 100})
	similar := makeGroup(finder.KindSimilar, map[string]int64{"/a.jpg": 100, "/c.jpg": 90})

	merged := scan.MergeGroups([]finder.Group{exact}, []finder.Group{similar}, nil)
	if len(merged) != 2 {
		t.Fatalf("got %d groups, want 2", len(merged))
	}
}

func TestMergeGroups_Ordering(t *testing.T) {
	smallExact := makeGroup(finder.KindExact, map[string]int64{"/a.jpg": 10, "/b.jpg": 10})
	bigExact := makeGroup(finder.KindExact, map[string]int64{"/c.jpg": 500, "/d.jpg": 500})
	bigSimilar := makeGroup(finder.KindSimilar, map[string]int64{"/e.jpg": 900, "/f.jpg": 900})

	merged := scan.MergeGroups(
		[]finder.Group{smallExact, bigExact},
		[]finder.Group{bigSimilar},
		nil,
	)

	var kinds []finder.Kind
	var sizes []int64
	for _, g := range merged {
		kinds = append(kinds, g.Kind)
		sizes = append(sizes, g.TotalBytes())
	}
	wantKinds := []finder.Kind{finder.KindExact, finder.KindExact, finder.KindSimilar}
	if !reflect.DeepEqual(kinds, wantKinds) {
		t.Errorf("kind order: got %v, want exact groups first", kinds)
	}
	wantSizes := []int64{1000, 20, 1800}
	if !reflect.DeepEqual(sizes, wantSizes) {
		t.Errorf("size order within kind: got %v, want %v", sizes, wantSizes)
	}
}

func TestMergeGroups_HiddenByComposition(t *testing.T) {
	g1 := makeGroup(finder.KindExact, map[string]int64{"/a.jpg": 100, "/b.jpg": 100})
	g2 := makeGroup(finder.KindExact, map[string]int64{"/c.jpg": 100, "/d.jpg": 100})

	hidden := map[string]struct{}{g1.CompositionID: {}}
	merged := scan.MergeGroups([]finder.Group{g1, g2}, nil, hidden)
	if len(merged) != 1 {
		t.Fatalf("got %d groups, want 1", len(merged))
	}
	if merged[0].CompositionID != g2.CompositionID {
		t.Error("wrong group was hidden")
	}

	// The same members plus one more is a different composition: it reappears.
	g3 := makeGroup(finder.KindExact, map[string]int64{"/a.jpg": 100, "/b.jpg": 100, "/x.jpg": 100})
	merged = scan.MergeGroups([]finder.Group{g3}, nil, hidden)
	if len(merged) != 1 {
		t.Error("group with changed membership must reappear")
	}
}

func TestDedupePaths(t *testing.T) {
	got := scan.DedupePaths([]string{"/a", "/b", "/a", "/c", "/b"})
	want := []string{"/a", "/b", "/c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
