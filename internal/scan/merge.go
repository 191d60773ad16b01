package scan

import (
	"sort"

	"github.com/twinscan/twinscan/internal/finder"
)

// MergeGroups combines exact and similar results into the final ordered list:
//
//  1. Similar groups whose member set exactly equals an exact group's are
//     dropped — an approximate match that turned out byte-identical is
//     redundant. Member-set equality is composition-id equality.
//  2. Exact groups sort before similar groups; within a kind, larger total
//     byte size first, so the biggest reclaimable groups surface first.
//  3. Groups whose composition id is in hidden are removed. A group stays
//     hidden only while its exact membership is unchanged; a different
//     member set yields a different composition id and reappears.
func MergeGroups(exact, similar []finder.Group, hidden map[string]struct{}) []finder.Group {
	exactSets := make(map[string]struct{}, len(exact))
	for _, g := range exact {
		exactSets[g.CompositionID] = struct{}{}
	}

	merged := make([]finder.Group, 0, len(exact)+len(similar))
	merged = append(merged, exact...)
	for _, g := range similar {
		if _, dup := exactSets[g.CompositionID]; dup {
			continue
		}
		merged = append(merged, g)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Kind != merged[j].Kind {
			return merged[i].Kind == finder.KindExact
		}
		return merged[i].TotalBytes() > merged[j].TotalBytes()
	})

	if len(hidden) == 0 {
		return merged
	}
	visible := merged[:0]
	for _, g := range merged {
		if _, ok := hidden[g.CompositionID]; ok {
			continue
		}
		visible = append(visible, g)
	}
	return visible
}

// DedupePaths returns paths with duplicates removed, preserving first-seen
// order. Used for the cumulative unreadable/unscannable set.
func DedupePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
