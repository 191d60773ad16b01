// Package catalog converts filesystem paths into immutable media records.
// The scan pipeline treats record conversion as an external collaborator:
// any path that cannot be converted is reported back, never fatal.
package catalog

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/twinscan/twinscan/internal/media"
)

// Record is an immutable description of one media file. ID is the absolute
// path and is the stable identity used everywhere downstream (selection,
// composition ids, denial pairs).
type Record struct {
	ID      string     `json:"id"`
	Size    int64      `json:"size"`
	ModTime time.Time  `json:"mod_time"`
	Kind    media.Kind `json:"kind"`
}

// Repository converts paths to Records.
type Repository interface {
	// Records converts paths into records. Paths that fail conversion are
	// returned in failed; they do not abort the call.
	Records(ctx context.Context, paths []string) (records []Record, failed []string, err error)
}

// FSRepository is the filesystem-backed Repository.
type FSRepository struct{}

// Records stats every path. Missing or unstattable paths land in failed.
func (FSRepository) Records(ctx context.Context, paths []string) ([]Record, []string, error) {
	records := make([]Record, 0, len(paths))
	var failed []string
	for _, p := range paths {
		if ctx.Err() != nil {
			return records, failed, ctx.Err()
		}
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			failed = append(failed, p)
			continue
		}
		records = append(records, Record{
			ID:      p,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Kind:    media.Detect(p),
		})
	}
	return records, failed, nil
}

// SortByTimeThenID orders records oldest-first, breaking timestamp ties by ID.
// Selection helpers rely on this being a total, stable order.
func SortByTimeThenID(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].ModTime.Equal(records[j].ModTime) {
			return records[i].ModTime.Before(records[j].ModTime)
		}
		return records[i].ID < records[j].ID
	})
}
