package handlers_test

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/twinscan/twinscan/internal/api/handlers"
	"github.com/twinscan/twinscan/internal/catalog"
	"github.com/twinscan/twinscan/internal/db"
	"github.com/twinscan/twinscan/internal/finder"
	"github.com/twinscan/twinscan/internal/results"
	"github.com/twinscan/twinscan/internal/scan"
	"github.com/twinscan/twinscan/internal/store"
)

func writeTestPNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// newThumbnailFixture seeds a results view holding one group of two real
// PNG files and returns their paths.
func newThumbnailFixture(t *testing.T) (*results.Manager, []string) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.New(database)

	dir := t.TempDir()
	var records []catalog.Record
	var paths []string
	for i, name := range []string{"a.png", "b.png"} {
		p := filepath.Join(dir, name)
		writeTestPNG(t, p)
		records = append(records, catalog.Record{ID: p, Size: 100, ModTime: time.Unix(int64(i), 0)})
		paths = append(paths, p)
	}
	g := finder.NewGroup(finder.KindSimilar, records)

	res := &store.ScanResult{
		Groups:    []finder.Group{g},
		ScopeType: "full",
		Timestamp: time.Unix(100, 0).UTC(),
	}
	if err := st.SaveResult(context.Background(), res); err != nil {
		t.Fatal(err)
	}

	m := results.NewManager(st, noopDeleter{}, nil)
	m.HandleState(context.Background(), scan.State{Phase: scan.PhaseComplete, Result: res})
	return m, paths
}

func thumbnailRouter(m *results.Manager) http.Handler {
	r := chi.NewRouter()
	h := &handlers.FilesHandler{Results: m}
	r.Get("/api/files/thumbnail", h.Thumbnail)
	return r
}

func getThumbnail(router http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	target := "/api/files/thumbnail?path=" + url.QueryEscape(path)
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestFilesHandler_ThumbnailServesResultMembers(t *testing.T) {
	m, paths := newThumbnailFixture(t)
	router := thumbnailRouter(m)

	rec := getThumbnail(router, paths[0])
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type: got %q, want image/jpeg", ct)
	}
	if rec.Body.Len() == 0 {
		t.Error("thumbnail body should not be empty")
	}
}

func TestFilesHandler_ThumbnailRefusesUnknownPaths(t *testing.T) {
	m, _ := newThumbnailFixture(t)
	router := thumbnailRouter(m)

	// A perfectly decodable image that no scan ever produced must not be
	// readable through the endpoint.
	outside := filepath.Join(t.TempDir(), "outside.png")
	writeTestPNG(t, outside)

	rec := getThumbnail(router, outside)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path: got %d, want 404", rec.Code)
	}

	rec = getThumbnail(router, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing path: got %d, want 400", rec.Code)
	}
}
