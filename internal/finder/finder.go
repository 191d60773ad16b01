// Package finder defines the duplicate-detection contract and the two
// built-in detectors: exact (content hash) and similar (perceptual hash).
//
// The scan orchestrator treats finders as opaque: records in, groups and
// skipped paths out, one progress tick per record. Per-file failures are
// data (skipped), never errors.
package finder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/twinscan/twinscan/internal/catalog"
)

// Kind tags how a group was detected.
type Kind string

const (
	KindExact   Kind = "exact"
	KindSimilar Kind = "similar"
)

// Group is a set of records judged duplicates of each other.
// A group always holds at least two members.
type Group struct {
	// UniqueID is stable within one scan run, used for detail navigation.
	UniqueID string `json:"unique_id"`
	// CompositionID is derived purely from the member ID set, independent
	// of ordering or scan run. See CompositionID.
	CompositionID string           `json:"composition_id"`
	Kind          Kind             `json:"kind"`
	Records       []catalog.Record `json:"records"`
}

// NewGroup builds a Group with a fresh UniqueID and a computed CompositionID.
func NewGroup(kind Kind, records []catalog.Record) Group {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return Group{
		UniqueID:      uuid.NewString(),
		CompositionID: CompositionID(ids),
		Kind:          kind,
		Records:       records,
	}
}

// TotalBytes is the summed size of all members; the reclaimable share is
// TotalBytes minus the one copy worth keeping.
func (g Group) TotalBytes() int64 {
	var n int64
	for _, r := range g.Records {
		n += r.Size
	}
	return n
}

// MemberIDs returns the sorted member ids.
func (g Group) MemberIDs() []string {
	ids := make([]string, len(g.Records))
	for i, r := range g.Records {
		ids[i] = r.ID
	}
	sort.Strings(ids)
	return ids
}

// CompositionID derives a stable identifier from a set of record ids.
// It is invariant to ordering: the ids are sorted before hashing, so the
// same membership always yields the same id across scan runs.
func CompositionID(ids []string) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	h := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return hex.EncodeToString(h[:])
}

// Finder detects duplicate groups among records.
type Finder interface {
	// Kind tags the groups this finder produces.
	Kind() Kind
	// Find inspects records and returns duplicate groups plus the paths it
	// could not read. tick must be called exactly once per input record as
	// it is processed; the caller uses it for progress accounting.
	Find(ctx context.Context, records []catalog.Record, tick func()) (groups []Group, skipped []string, err error)
}
