package scan

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/twinscan/twinscan/internal/catalog"
	"github.com/twinscan/twinscan/internal/config"
	"github.com/twinscan/twinscan/internal/events"
	"github.com/twinscan/twinscan/internal/finder"
	"github.com/twinscan/twinscan/internal/lease"
	"github.com/twinscan/twinscan/internal/media"
	"github.com/twinscan/twinscan/internal/store"
)

// Options selects which detectors run. Both may be false; the scan then
// produces an empty (but valid) snapshot.
type Options struct {
	Exact   bool `json:"exact"`
	Similar bool `json:"similar"`
}

// Notifier is the terminal notification surface consumed by the run.
type Notifier interface {
	ScanComplete(exactGroups, similarGroups, skipped int, reclaimableBytes int64)
	ScanCancelled(reason string)
	ScanFailed(err error)
	ScopePruned(removed int)
}

// Lease sizing: a conservative wall-clock upper bound for the busy hold.
// The hold must outlive the hashing phase but stay bounded so a crash that
// skips release cannot pin the hold forever.
const (
	leaseBaseHold = 120 * time.Second
	leasePerImage = 150 * time.Millisecond
	leasePerVideo = 750 * time.Millisecond
)

// Orchestrator sequences the scan phases. One Run at a time; the Manager
// enforces that invariant.
type Orchestrator struct {
	store  *store.Store
	repo   catalog.Repository
	keeper *lease.Keeper
	pub    *Publisher
	notify Notifier
	bus    *events.Bus

	roots       []string
	scope       config.ScanScope
	walkWorkers int

	// buildFinders constructs the enabled detectors for one run with a
	// fresh view of the denial registry. Overridable in tests.
	buildFinders func(opts Options, denials finder.DenialChecker) []finder.Finder
}

// NewOrchestrator wires an Orchestrator from its collaborators.
// bus and notify may be nil.
func NewOrchestrator(
	st *store.Store,
	repo catalog.Repository,
	keeper *lease.Keeper,
	pub *Publisher,
	notify Notifier,
	bus *events.Bus,
	cfg *config.Config,
) *Orchestrator {
	o := &Orchestrator{
		store:       st,
		repo:        repo,
		keeper:      keeper,
		pub:         pub,
		notify:      notify,
		bus:         bus,
		roots:       cfg.MediaRoots,
		scope:       cfg.Scope,
		walkWorkers: cfg.WalkWorkers,
	}
	hashWorkers := cfg.HashWorkers
	o.buildFinders = func(opts Options, denials finder.DenialChecker) []finder.Finder {
		var finders []finder.Finder
		if opts.Exact {
			finders = append(finders, finder.NewExactFinder(hashWorkers))
		}
		if opts.Similar {
			// Level is read per run so a config change applies to the
			// next scan without a restart.
			finders = append(finders, finder.NewSimilarFinder(cfg.SimilarityLevel, denials))
		}
		return finders
	}
	return o
}

// cancelled is the uniform cancellation check applied after every blocking
// phase, before any further state is committed.
func cancelled(ctx context.Context) error { return ctx.Err() }

// Run executes one scan. It always reaches the cleanup path exactly once:
// lease released, terminal state published, summary notification emitted —
// regardless of completion, cancellation or failure. A cancelled or failed
// run never overwrites the previous good snapshot.
func (o *Orchestrator) Run(ctx context.Context, opts Options) {
	started := time.Now()
	showStale := o.store.HasValidCache(ctx)

	tracker := NewTracker(func(frac float64, label string) {
		o.pub.Scanning(frac, label, showStale)
	})
	tracker.Update(0, "starting")
	slog.Info("scan started", "exact", opts.Exact, "similar", opts.Similar, "roots", o.roots)

	var hold *lease.Lease
	res, runErr := o.runPhases(ctx, opts, tracker, &hold)

	if hold != nil {
		hold.Release()
	}

	status := "completed"
	switch {
	case ctx.Err() != nil:
		status = "cancelled"
		reason := "cancelled"
		if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
			reason = cause.Error()
		}
		o.pub.Cancelled()
		if o.notify != nil {
			o.notify.ScanCancelled(reason)
		}
	case runErr != nil:
		status = "failed"
		o.pub.Error(runErr.Error())
		if o.notify != nil {
			o.notify.ScanFailed(runErr)
		}
	default:
		tracker.Finish()
		o.pub.Complete(res)
		if o.notify != nil {
			exact, similar, reclaimable := summarize(res.Groups)
			o.notify.ScanComplete(exact, similar, len(res.Unscannable), reclaimable)
		}
	}

	slog.Info("scan finished", "status", status, "duration", time.Since(started).Round(time.Millisecond))
}

// runPhases runs phases 1–9 in order. Per-file failures accumulate into the
// skipped set and are reported as data; only unexpected faults return an
// error.
func (o *Orchestrator) runPhases(ctx context.Context, opts Options, tracker *Tracker, holdOut **lease.Lease) (*store.ScanResult, error) {
	// Phase 1: load the unreadable-file cache.
	entries, err := o.store.UnreadableEntries(ctx)
	if err != nil {
		return nil, err
	}
	cache := NewUnreadableCache(entries)
	if err := cancelled(ctx); err != nil {
		return nil, err
	}

	// Phase 2: gather all media paths, then apply the scan scope.
	paths := WalkMedia(ctx, o.roots, o.walkWorkers, func(path string, err error) {
		slog.Warn("walk error", "path", path, "error", err)
	})
	if err := cancelled(ctx); err != nil {
		return nil, err
	}

	scoped, scopeType := ResolveScope(paths, o.scope, nil, o.persistPrunedScope, o.scopePruneNotice)
	tracker.GatherDone()

	// Phase 3: size and take the busy hold before heavy work begins.
	*holdOut = o.keeper.Acquire(leaseBudget(scoped), "scan")

	// Phase 4: drop system/hidden paths and known-bad unchanged files.
	var skipped []string
	kept := make([]string, 0, len(scoped))
	for _, p := range scoped {
		if isSystemPath(p) {
			continue
		}
		info, statErr := os.Stat(p)
		if statErr != nil {
			skipped = append(skipped, p)
			continue
		}
		if cache.ShouldSkip(p, info.ModTime().Unix(), info.Size()) {
			skipped = append(skipped, p)
			continue
		}
		kept = append(kept, p)
	}
	if err := cancelled(ctx); err != nil {
		return nil, err
	}
	tracker.FilterDone()

	// Phase 5: convert paths into media records.
	records, failed, err := o.repo.Records(ctx, kept)
	if err != nil {
		return nil, err
	}
	skipped = append(skipped, failed...)
	if err := cancelled(ctx); err != nil {
		return nil, err
	}
	tracker.PrepareDone()

	// Phases 6–7: run the enabled detectors, exact first.
	denials, err := o.store.Denials(ctx)
	if err != nil {
		return nil, err
	}
	finders := o.buildFinders(opts, denials)

	hashTracker := NewHashTracker(tracker, len(records), len(finders))
	var exactGroups, similarGroups []finder.Group
	for _, f := range finders {
		label := "hashing duplicates"
		if f.Kind() == finder.KindSimilar {
			label = "comparing similar media"
		}
		groups, fSkipped, err := f.Find(ctx, records, func() { hashTracker.Tick(label) })
		if err != nil {
			return nil, err
		}
		skipped = append(skipped, fSkipped...)
		if f.Kind() == finder.KindExact {
			exactGroups = groups
		} else {
			similarGroups = groups
		}
		if err := cancelled(ctx); err != nil {
			return nil, err
		}
	}

	// Phase 8: merge and filter against the hidden-group registry.
	hidden, err := o.store.HiddenGroupIDs(ctx)
	if err != nil {
		return nil, err
	}
	merged := MergeGroups(exactGroups, similarGroups, hidden)
	unscannable := DedupePaths(skipped)

	// Phase 9: persist. Reached only by a successful run.
	res := &store.ScanResult{
		Groups:      merged,
		Unscannable: unscannable,
		ScopeType:   scopeType,
		Timestamp:   time.Now().UTC(),
	}
	if err := o.store.SaveResult(ctx, res); err != nil {
		return nil, err
	}
	cache.MarkBad(unscannable)
	if err := o.store.PutUnreadable(ctx, cache.NewEntries()); err != nil {
		slog.Warn("persist unreadable cache", "error", err)
	}
	if err := o.store.SetSetting(ctx, store.SettingHasScanned, "true"); err != nil {
		slog.Warn("persist has_scanned flag", "error", err)
	}
	return res, nil
}

// persistPrunedScope stores the surviving scope list after self-healing.
func (o *Orchestrator) persistPrunedScope(valid []string) error {
	raw, err := json.Marshal(valid)
	if err != nil {
		return err
	}
	o.scope.Paths = valid
	return o.store.SetSetting(context.Background(), store.SettingScopePaths, string(raw))
}

// scopePruneNotice surfaces the one-time removal notice.
func (o *Orchestrator) scopePruneNotice(removed int) {
	if o.notify != nil {
		o.notify.ScopePruned(removed)
	}
	if o.bus != nil {
		o.bus.Publish(events.ScopeListPruned{Count: removed})
	}
}

// leaseBudget estimates the wall-clock upper bound for the busy hold:
// a fixed base plus a per-item cost, videos weighted heavier than images.
func leaseBudget(paths []string) time.Duration {
	var images, videos int
	for _, p := range paths {
		switch media.Detect(p) {
		case media.KindVideo:
			videos++
		default:
			images++
		}
	}
	return leaseBaseHold +
		time.Duration(images)*leasePerImage +
		time.Duration(videos)*leasePerVideo
}

// systemPathMarkers are directory names whose contents never participate in
// a scan (OS/NAS bookkeeping, thumbnail caches, recycle bins).
var systemPathMarkers = []string{
	"@eaDir", "#recycle", "$RECYCLE.BIN", "lost+found",
}

// isSystemPath reports whether any path segment is hidden or a known
// system directory.
func isSystemPath(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
		for _, marker := range systemPathMarkers {
			if seg == marker {
				return true
			}
		}
	}
	return false
}

// summarize counts groups by kind and totals the reclaimable bytes
// (everything beyond one kept copy per group).
func summarize(groups []finder.Group) (exact, similar int, reclaimable int64) {
	for _, g := range groups {
		if g.Kind == finder.KindExact {
			exact++
		} else {
			similar++
		}
		if len(g.Records) > 1 {
			var largest int64
			for _, r := range g.Records {
				if r.Size > largest {
					largest = r.Size
				}
			}
			reclaimable += g.TotalBytes() - largest
		}
	}
	return exact, similar, reclaimable
}
