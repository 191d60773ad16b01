package handlers

import (
	"net/http"

	"github.com/twinscan/twinscan/internal/media"
	"github.com/twinscan/twinscan/internal/results"
)

// FilesHandler serves per-file auxiliary data.
type FilesHandler struct {
	Results *results.Manager
}

// Thumbnail handles GET /api/files/thumbnail?path=… . The path doubles as
// the record id and must resolve through the current results; arbitrary
// filesystem paths are refused.
func (h *FilesHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if !h.Results.Contains(path) {
		writeError(w, http.StatusNotFound, "unknown file")
		return
	}

	thumb, err := media.Thumbnail(path, 320, 320)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if thumb == nil {
		writeError(w, http.StatusNotFound, "no thumbnail available")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(thumb)
}
