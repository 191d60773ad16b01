package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/twinscan/twinscan/internal/results"
)

// GroupsHandler exposes the result lifecycle: listing, selection, deletion
// and the per-group feedback operations.
type GroupsHandler struct {
	Results           *results.Manager
	ConfirmBulkDelete bool
}

// List handles GET /api/results.
func (h *GroupsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Results.Snapshot())
}

// Toggle handles POST /api/results/selection/toggle.
func (h *GroupsHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(r, &body); err != nil || body.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := h.Results.Toggle(body.ID); err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.selectionBody())
}

// ToggleGroup handles POST /api/results/groups/{uid}/toggle.
func (h *GroupsHandler) ToggleGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.Results.ToggleGroup(chi.URLParam(r, "uid")); err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.selectionBody())
}

// KeepOldest handles POST /api/results/groups/{uid}/keep-oldest.
func (h *GroupsHandler) KeepOldest(w http.ResponseWriter, r *http.Request) {
	h.keepOne(w, r, true)
}

// KeepNewest handles POST /api/results/groups/{uid}/keep-newest.
func (h *GroupsHandler) KeepNewest(w http.ResponseWriter, r *http.Request) {
	h.keepOne(w, r, false)
}

func (h *GroupsHandler) keepOne(w http.ResponseWriter, r *http.Request, keepOldest bool) {
	if err := h.Results.KeepOne(chi.URLParam(r, "uid"), keepOldest); err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.selectionBody())
}

// BulkKeepOldest handles POST /api/results/keep-oldest: in every exact
// group, select everything but the oldest copy.
func (h *GroupsHandler) BulkKeepOldest(w http.ResponseWriter, r *http.Request) {
	added := h.Results.KeepOldestAcrossExact()
	body := h.selectionBody()
	body["added"] = added
	writeJSON(w, http.StatusOK, body)
}

// Selection handles GET /api/results/selection.
func (h *GroupsHandler) Selection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.selectionBody())
}

// Delete handles POST /api/results/delete. When the server is configured
// to require confirmation for bulk deletes, the body must carry
// {"confirm": true}.
func (h *GroupsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Confirm bool `json:"confirm"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if h.ConfirmBulkDelete && !body.Confirm {
		writeError(w, http.StatusPreconditionRequired, "deletion requires confirmation")
		return
	}

	report, err := h.Results.DeleteSelected(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Hide handles POST /api/results/groups/{uid}/hide.
func (h *GroupsHandler) Hide(w http.ResponseWriter, r *http.Request) {
	if err := h.Results.HideGroup(r.Context(), chi.URLParam(r, "uid")); err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "hidden"})
}

// Flag handles POST /api/results/groups/{uid}/flag: "this group is not a
// duplicate set" — records pairwise denials and removes the group.
func (h *GroupsHandler) Flag(w http.ResponseWriter, r *http.Request) {
	if err := h.Results.FlagIncorrect(r.Context(), chi.URLParam(r, "uid")); err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "flagged"})
}

func (h *GroupsHandler) selectionBody() map[string]any {
	view := h.Results.Snapshot()
	return map[string]any{
		"selected_ids":      view.SelectedIDs,
		"reclaimable_bytes": view.ReclaimableBytes,
	}
}

func (h *GroupsHandler) writeLifecycleError(w http.ResponseWriter, err error) {
	if errors.Is(err, results.ErrUnknownTarget) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
