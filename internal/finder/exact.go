package finder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/twinscan/twinscan/internal/catalog"
)

// ExactFinder groups bit-identical files by full SHA-256 content hash.
// Files are prescreened by size first: a file whose size is unique cannot
// have an exact duplicate and is never opened.
type ExactFinder struct {
	Workers int
}

// NewExactFinder returns an ExactFinder hashing with workers goroutines.
func NewExactFinder(workers int) *ExactFinder {
	if workers < 1 {
		workers = 1
	}
	return &ExactFinder{Workers: workers}
}

// Kind implements Finder.
func (f *ExactFinder) Kind() Kind { return KindExact }

// Find implements Finder. Unreadable files are returned in skipped.
func (f *ExactFinder) Find(ctx context.Context, records []catalog.Record, tick func()) ([]Group, []string, error) {
	// Size prescreen: only same-sized files can be identical.
	bySize := make(map[int64][]catalog.Record)
	for _, r := range records {
		bySize[r.Size] = append(bySize[r.Size], r)
	}

	var candidates []catalog.Record
	for _, same := range bySize {
		if len(same) < 2 || same[0].Size == 0 {
			// Singletons and empty files are done: tick them now.
			for range same {
				tick()
			}
			continue
		}
		candidates = append(candidates, same...)
	}

	var (
		mu      sync.Mutex
		byHash  = make(map[string][]catalog.Record)
		skipped []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.Workers)
	for _, rec := range candidates {
		rec := rec
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			hash, err := hashFile(rec.ID)

			mu.Lock()
			if err != nil {
				skipped = append(skipped, rec.ID)
			} else {
				byHash[hash] = append(byHash[hash], rec)
			}
			mu.Unlock()
			tick()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var groups []Group
	for _, same := range byHash {
		if len(same) < 2 {
			continue
		}
		catalog.SortByTimeThenID(same)
		groups = append(groups, NewGroup(KindExact, same))
	}
	return groups, skipped, nil
}

// hashFile computes the full SHA-256 of the file at path.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
