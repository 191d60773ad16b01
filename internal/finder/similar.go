package finder

import (
	"context"
	"image"
	"math/bits"

	"github.com/twinscan/twinscan/internal/catalog"
	"github.com/twinscan/twinscan/internal/media"
)

// DenialChecker answers whether the user has marked a pairing as
// "not a duplicate". Denied pairs are never grouped again.
type DenialChecker interface {
	IsDenied(a, b string) bool
}

// nopDenials allows every pairing.
type nopDenials struct{}

func (nopDenials) IsDenied(_, _ string) bool { return false }

// SimilarFinder groups perceptually similar images using a 64-bit average
// hash over an 8x8 grayscale downscale. Two images are similar when the
// Hamming distance between their hashes is within the level's threshold.
// Videos and undecodable formats are not candidates (not errors).
type SimilarFinder struct {
	level   int
	denials DenialChecker
}

// Hamming-distance thresholds per similarity level (1 = strict, 3 = loose).
var levelThresholds = map[int]int{1: 5, 2: 10, 3: 16}

// NewSimilarFinder returns a SimilarFinder for the given level (1..3).
// denials may be nil.
func NewSimilarFinder(level int, denials DenialChecker) *SimilarFinder {
	if _, ok := levelThresholds[level]; !ok {
		level = 2
	}
	if denials == nil {
		denials = nopDenials{}
	}
	return &SimilarFinder{level: level, denials: denials}
}

// Kind implements Finder.
func (f *SimilarFinder) Kind() Kind { return KindSimilar }

type hashedRecord struct {
	rec  catalog.Record
	hash uint64
}

// Find implements Finder.
func (f *SimilarFinder) Find(ctx context.Context, records []catalog.Record, tick func()) ([]Group, []string, error) {
	var (
		hashed  []hashedRecord
		skipped []string
	)
	for _, rec := range records {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		if rec.Kind != media.KindImage || !media.Decodable(rec.ID) {
			tick()
			continue
		}
		img, err := media.Decode(rec.ID)
		if err != nil {
			skipped = append(skipped, rec.ID)
			tick()
			continue
		}
		hashed = append(hashed, hashedRecord{rec: rec, hash: averageHash(img)})
		tick()
	}

	threshold := levelThresholds[f.level]

	// Union-find over pairs within the threshold, honoring denials.
	parent := make([]int, len(hashed))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := 0; i < len(hashed); i++ {
		for j := i + 1; j < len(hashed); j++ {
			if bits.OnesCount64(hashed[i].hash^hashed[j].hash) > threshold {
				continue
			}
			if f.denials.IsDenied(hashed[i].rec.ID, hashed[j].rec.ID) {
				continue
			}
			parent[find(i)] = find(j)
		}
	}

	members := make(map[int][]catalog.Record)
	for i, h := range hashed {
		root := find(i)
		members[root] = append(members[root], h.rec)
	}

	var groups []Group
	for _, same := range members {
		if len(same) < 2 {
			continue
		}
		catalog.SortByTimeThenID(same)
		groups = append(groups, NewGroup(KindSimilar, same))
	}
	return groups, skipped, nil
}

// averageHash computes a 64-bit hash: downscale to 8x8 gray, then one bit
// per pixel indicating whether it is above the mean luminance.
func averageHash(img image.Image) uint64 {
	gray := media.Scale(img, 8, 8)

	var lum [64]uint32
	var sum uint64
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			r, g, b, _ := gray.At(x, y).RGBA()
			l := (r + g + b) / 3
			lum[y*8+x] = l
			sum += uint64(l)
		}
	}
	mean := uint32(sum / 64)

	var hash uint64
	for i, l := range lum {
		if l > mean {
			hash |= 1 << uint(i)
		}
	}
	return hash
}
