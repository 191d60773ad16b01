// Package notify is the terminal notification surface. The default sink
// writes structured log lines; a real deployment can swap in push
// notifications behind the same interface.
package notify

import (
	"log/slog"

	"github.com/dustin/go-humanize"
)

// LogNotifier emits scan summaries through slog.
type LogNotifier struct{}

// ScanComplete reports the completed-scan summary.
func (LogNotifier) ScanComplete(exactGroups, similarGroups, skipped int, reclaimableBytes int64) {
	slog.Info("scan complete",
		"exact_groups", exactGroups,
		"similar_groups", similarGroups,
		"skipped_files", skipped,
		"reclaimable", humanize.Bytes(uint64(reclaimableBytes)))
}

// ScanCancelled reports a cancelled scan with its reason.
func (LogNotifier) ScanCancelled(reason string) {
	slog.Info("scan cancelled", "reason", reason)
}

// ScanFailed reports a failed scan.
func (LogNotifier) ScanFailed(err error) {
	slog.Error("scan failed", "error", err)
}

// ScopePruned reports the one-time notice that invalid scope entries were
// removed.
func (LogNotifier) ScopePruned(removed int) {
	slog.Warn("scan scope self-healed", "removed_entries", removed)
}
