package scan_test

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/twinscan/twinscan/internal/scan"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestWalkMedia_FindsOnlyMediaFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"a.jpg",
		"sub/b.mp4",
		"sub/deep/c.png",
		"notes.txt",
		"sub/readme.md",
	)

	got := scan.WalkMedia(context.Background(), []string{root}, 4, nil)
	want := []string{
		filepath.Join(root, "a.jpg"),
		filepath.Join(root, "sub", "b.mp4"),
		filepath.Join(root, "sub", "deep", "c.png"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestWalkMedia_MultipleRoots(t *testing.T) {
	r1, r2 := t.TempDir(), t.TempDir()
	writeFiles(t, r1, "one.jpg")
	writeFiles(t, r2, "two.jpg")

	got := scan.WalkMedia(context.Background(), []string{r1, r2}, 2, nil)
	if len(got) != 2 {
		t.Errorf("got %d files, want 2", len(got))
	}
}

func TestWalkMedia_ReportsUnreadableDirs(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.jpg")

	var (
		mu       sync.Mutex
		reported []string
	)
	scan.WalkMedia(context.Background(), []string{root, filepath.Join(root, "missing")}, 2,
		func(path string, err error) {
			mu.Lock()
			reported = append(reported, path)
			mu.Unlock()
		})

	if len(reported) != 1 {
		t.Errorf("got %d reported errors, want 1 for the missing root", len(reported))
	}
}

func TestWalkMedia_NoRoots(t *testing.T) {
	if got := scan.WalkMedia(context.Background(), nil, 4, nil); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestWalkMedia_CancelledContextTerminates(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.jpg", "b/c.jpg", "b/d/e.jpg")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Must return, not deadlock; results may be partial.
	scan.WalkMedia(ctx, []string{root}, 4, nil)
}
