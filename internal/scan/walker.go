package scan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/twinscan/twinscan/internal/media"
)

// dirQueue is an unbounded, concurrency-safe queue of directory paths.
// It tracks a pending counter so that Walk() knows when all work is done.
//
// Termination protocol:
//   - Push increments pending BEFORE enqueuing (caller must own the increment).
//   - Done decrements pending AFTER all children of a directory have been
//     pushed. When pending reaches 0, Done closes the queue and broadcasts.
type dirQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []string
	head    int // index of the next item to pop; avoids O(n) re-slicing
	pending atomic.Int64
	closed  bool
}

func newDirQueue() *dirQueue {
	q := &dirQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *dirQueue) Push(dir string) {
	q.mu.Lock()
	q.items = append(q.items, dir)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop blocks until an item is available or the queue is closed.
// Returns ("", false) when the queue is closed and empty.
func (q *dirQueue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.head >= len(q.items) && !q.closed {
		q.cond.Wait()
	}
	if q.head >= len(q.items) {
		return "", false
	}
	item := q.items[q.head]
	q.items[q.head] = "" // release string reference so GC can collect it
	q.head++
	if q.head >= 1000 && q.head >= len(q.items)/2 {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return item, true
}

// Done must be called once per directory after all its child-directories
// have been pushed. Decrements pending; at 0, closes the queue.
func (q *dirQueue) Done() {
	if q.pending.Add(-1) == 0 {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		q.cond.Broadcast()
	}
}

// WalkMedia traverses roots concurrently with workers goroutines and
// returns the paths of every regular media file (image or video) found,
// sorted for deterministic downstream behavior. Traversal errors are
// reported through report and never abort the walk.
func WalkMedia(ctx context.Context, roots []string, workers int, report func(path string, err error)) []string {
	if workers < 1 {
		workers = 1
	}
	if report == nil {
		report = func(string, error) {}
	}

	q := newDirQueue()
	for _, root := range roots {
		q.pending.Add(1)
		q.Push(root)
	}
	if len(roots) == 0 {
		return nil
	}

	var (
		mu    sync.Mutex
		paths []string
	)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			walkWorker(ctx, q, report, func(p string) {
				mu.Lock()
				paths = append(paths, p)
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	sort.Strings(paths)
	return paths
}

// walkWorker pops directories from q, reads their entries, enqueues
// sub-directories (incrementing pending first), emits media files, then
// calls q.Done() to decrement pending.
func walkWorker(ctx context.Context, q *dirQueue, report func(string, error), emit func(string)) {
	for {
		select {
		case <-ctx.Done():
			// Drain so other workers unblock and pending reaches zero.
			if _, ok := q.Pop(); !ok {
				return
			}
			q.Done()
			continue
		default:
		}

		dir, ok := q.Pop()
		if !ok {
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			report(dir, err)
			q.Done()
			continue
		}

		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())

			if entry.IsDir() {
				// Increment BEFORE pushing so pending is never zero prematurely.
				q.pending.Add(1)
				q.Push(path)
				continue
			}
			if entry.Type()&fs.ModeSymlink != 0 {
				continue
			}
			if !entry.Type().IsRegular() {
				continue
			}
			if media.Detect(path) == media.KindOther {
				continue
			}
			emit(path)
		}

		q.Done()
	}
}
