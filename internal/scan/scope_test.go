package scan_test

import (
	"reflect"
	"testing"

	"github.com/twinscan/twinscan/internal/config"
	"github.com/twinscan/twinscan/internal/scan"
)

func TestResolveScope_FullPassesEverything(t *testing.T) {
	paths := []string{"/media/a.jpg", "/media/b.jpg"}
	got, mode := scan.ResolveScope(paths, config.ScanScope{Mode: config.ScopeFull}, nil, nil, nil)
	if mode != config.ScopeFull {
		t.Errorf("mode: got %q, want full", mode)
	}
	if !reflect.DeepEqual(got, paths) {
		t.Errorf("paths: got %v, want %v", got, paths)
	}
}

func TestResolveScope_IncludeKeepsMatches(t *testing.T) {
	paths := []string{"/media/photos/a.jpg", "/media/videos/b.mp4", "/other/c.jpg"}
	scope := config.ScanScope{Mode: config.ScopeInclude, Paths: []string{"/media/photos"}}
	exists := func(string) bool { return true }

	got, mode := scan.ResolveScope(paths, scope, exists, nil, nil)
	if mode != config.ScopeInclude {
		t.Errorf("mode: got %q, want include", mode)
	}
	want := []string{"/media/photos/a.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("paths: got %v, want %v", got, want)
	}
}

func TestResolveScope_ExcludeDropsMatches(t *testing.T) {
	paths := []string{"/media/photos/a.jpg", "/media/backup/b.jpg"}
	scope := config.ScanScope{Mode: config.ScopeExclude, Paths: []string{"/media/backup"}}
	exists := func(string) bool { return true }

	got, _ := scan.ResolveScope(paths, scope, exists, nil, nil)
	want := []string{"/media/photos/a.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("paths: got %v, want %v", got, want)
	}
}

func TestResolveScope_PrunesVanishedEntries(t *testing.T) {
	paths := []string{"/media/photos/a.jpg", "/media/old/b.jpg"}
	scope := config.ScanScope{
		Mode:  config.ScopeInclude,
		Paths: []string{"/media/photos", "/media/gone"},
	}
	exists := func(p string) bool { return p == "/media/photos" }

	var persisted []string
	var noticed int
	got, mode := scan.ResolveScope(paths, scope, exists,
		func(valid []string) error { persisted = valid; return nil },
		func(removed int) { noticed = removed },
	)

	if mode != config.ScopeInclude {
		t.Errorf("mode: got %q, want include", mode)
	}
	if !reflect.DeepEqual(persisted, []string{"/media/photos"}) {
		t.Errorf("persisted list: got %v, want surviving entries only", persisted)
	}
	if noticed != 1 {
		t.Errorf("notice count: got %d, want 1", noticed)
	}
	want := []string{"/media/photos/a.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("paths: got %v, want %v", got, want)
	}
}

func TestResolveScope_EmptyAfterPruneDegradesToFull(t *testing.T) {
	paths := []string{"/media/a.jpg", "/media/b.jpg"}
	scope := config.ScanScope{Mode: config.ScopeInclude, Paths: []string{"/media/gone"}}
	exists := func(string) bool { return false }

	got, mode := scan.ResolveScope(paths, scope, exists, nil, nil)
	if mode != config.ScopeFull {
		t.Errorf("mode: got %q, want full (scope must never exclude everything)", mode)
	}
	if !reflect.DeepEqual(got, paths) {
		t.Errorf("paths: got %v, want all of %v", got, paths)
	}
}
