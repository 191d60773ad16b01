package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/twinscan/twinscan/internal/scan"
)

// ScansHandler exposes the start/cancel control surface.
type ScansHandler struct {
	Manager        *scan.Manager
	DefaultExact   bool
	DefaultSimilar bool
}

// Create handles POST /api/scan. Starting while a scan is running is a
// conflict, not a queue.
func (h *ScansHandler) Create(w http.ResponseWriter, r *http.Request) {
	opts := scan.Options{Exact: h.DefaultExact, Similar: h.DefaultSimilar}
	if err := decodeJSON(r, &opts); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// The scan outlives the request; only process shutdown cancels it.
	active, err := h.Manager.Start(context.Background(), opts)
	if errors.Is(err, scan.ErrAlreadyRunning) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"started_at": active.StartedAt,
		"exact":      active.Options.Exact,
		"similar":    active.Options.Similar,
	})
}

// Cancel handles DELETE /api/scan. Cancelling while idle is a conflict.
func (h *ScansHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	err := h.Manager.Cancel("cancelled via API")
	if errors.Is(err, scan.ErrNoActiveScan) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}
