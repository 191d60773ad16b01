package handlers

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/twinscan/twinscan/internal/results"
	"github.com/twinscan/twinscan/internal/scan"
	"github.com/twinscan/twinscan/internal/scheduler"
)

// StatusHandler handles GET /api/status.
type StatusHandler struct {
	Broadcaster *scan.Broadcaster
	Results     *results.Manager
	Sched       *scheduler.Scheduler
	Version     string
}

type statusResponse struct {
	Version  string          `json:"version"`
	Scan     scan.State      `json:"scan"`
	Results  *resultsSummary `json:"results"`
	Schedule scheduleInfo    `json:"schedule"`
}

type resultsSummary struct {
	Groups           int                `json:"groups"`
	UnscannableFiles int                `json:"unscannable_files"`
	Stale            bool               `json:"stale"`
	Info             *results.StaleInfo `json:"stale_info"`
	SelectedFiles    int                `json:"selected_files"`
	Reclaimable      string             `json:"reclaimable"`
	ReclaimableBytes int64              `json:"reclaimable_bytes"`
}

type scheduleInfo struct {
	Cron      string     `json:"cron"`
	NextRunAt *time.Time `json:"next_run_at"`
}

// ServeHTTP returns the system status as JSON. Observers attaching mid-scan
// reconstruct progress from the broadcaster's current state.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	view := h.Results.Snapshot()
	resp := statusResponse{
		Version: h.Version,
		Scan:    h.Broadcaster.Current(),
		Results: &resultsSummary{
			Groups:           len(view.Groups),
			UnscannableFiles: view.UnscannableCount,
			Stale:            view.Stale,
			Info:             view.Info,
			SelectedFiles:    len(view.SelectedIDs),
			Reclaimable:      humanize.Bytes(uint64(view.ReclaimableBytes)),
			ReclaimableBytes: view.ReclaimableBytes,
		},
		Schedule: scheduleInfo{
			Cron:      h.Sched.CronExpr(),
			NextRunAt: h.Sched.NextRunAt(),
		},
	}
	writeJSON(w, http.StatusOK, resp)
}
