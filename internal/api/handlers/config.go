package handlers

import (
	"net/http"
	"strconv"

	"github.com/twinscan/twinscan/internal/config"
	"github.com/twinscan/twinscan/internal/results"
	"github.com/twinscan/twinscan/internal/store"
)

// ConfigHandler exposes the runtime-changeable settings.
type ConfigHandler struct {
	Cfg     *config.Config
	Store   *store.Store
	Results *results.Manager
}

type configView struct {
	Scope             config.ScanScope `json:"scope"`
	SimilarityLevel   int              `json:"similarity_level"`
	ConfirmBulkDelete bool             `json:"confirm_bulk_delete"`
	Schedule          string           `json:"schedule"`
	HasScanned        bool             `json:"has_scanned"`
}

// Get handles GET /api/config.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	hasScanned, err := h.Store.Setting(r.Context(), store.SettingHasScanned)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, configView{
		Scope:             h.Cfg.Scope,
		SimilarityLevel:   h.Cfg.SimilarityLevel,
		ConfirmBulkDelete: h.Cfg.ConfirmBulkDelete,
		Schedule:          h.Cfg.Schedule,
		HasScanned:        hasScanned == "true",
	})
}

// Update handles PATCH /api/config. Changing the similarity level
// invalidates assumptions behind the cached approximate matches, so the
// displayed results are marked stale.
func (h *ConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SimilarityLevel *int `json:"similarity_level"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.SimilarityLevel == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	level := *body.SimilarityLevel
	if level < 1 || level > 3 {
		writeError(w, http.StatusBadRequest, "similarity_level must be 1..3")
		return
	}
	if level != h.Cfg.SimilarityLevel {
		h.Cfg.SimilarityLevel = level
		if err := h.Store.SetSetting(r.Context(), store.SettingSimilarityLevel, strconv.Itoa(level)); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.Results.MarkStale()
	}
	writeJSON(w, http.StatusOK, map[string]int{"similarity_level": level})
}
