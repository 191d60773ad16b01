package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/twinscan/twinscan/internal/api"
	"github.com/twinscan/twinscan/internal/catalog"
	"github.com/twinscan/twinscan/internal/config"
	"github.com/twinscan/twinscan/internal/db"
	"github.com/twinscan/twinscan/internal/events"
	"github.com/twinscan/twinscan/internal/lease"
	"github.com/twinscan/twinscan/internal/metrics"
	"github.com/twinscan/twinscan/internal/notify"
	"github.com/twinscan/twinscan/internal/results"
	"github.com/twinscan/twinscan/internal/scan"
	"github.com/twinscan/twinscan/internal/scheduler"
	"github.com/twinscan/twinscan/internal/store"
	"github.com/twinscan/twinscan/internal/trash"
)

// Injected at build time via -ldflags; defaults to "dev".
var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// ── Logging (initial — overridden below once config is loaded) ─────────
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// ── Config ─────────────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	// Re-configure logging with the level from config (default: info).
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("twinscan starting",
		"version", version,
		"log_level", cfg.LogLevel,
		"http_addr", cfg.HTTPAddr,
		"db_path", cfg.DBPath,
		"media_roots", cfg.MediaRoots)

	// ── Database ───────────────────────────────────────────────────────────
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		slog.Error("run migrations", "error", err)
		os.Exit(1)
	}
	st := store.New(database)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Restore a scope list pruned by a previous run before the first scan.
	if raw, err := st.Setting(ctx, store.SettingScopePaths); err == nil && raw != "" {
		if paths, err := config.DecodeScopePaths(raw); err == nil {
			cfg.Scope.Paths = paths
		}
	}

	// Restore a similarity level changed through the API by a previous run.
	if raw, err := st.Setting(ctx, store.SettingSimilarityLevel); err == nil && raw != "" {
		if level, err := config.DecodeSimilarityLevel(raw); err == nil {
			cfg.SimilarityLevel = level
		} else {
			slog.Warn("ignoring persisted similarity level", "error", err)
		}
	}

	// ── Scan pipeline ──────────────────────────────────────────────────────
	broadcaster, pub := scan.NewBroadcaster()
	keeper := lease.NewKeeper()
	notifier := notify.LogNotifier{}
	bus := events.NewBus()

	orch := scan.NewOrchestrator(st, catalog.FSRepository{}, keeper, pub, notifier, bus, cfg)
	mgr := scan.NewManager(orch, pub)

	// ── Result lifecycle ───────────────────────────────────────────────────
	trashMgr := trash.New(database, cfg.TrashDir, cfg.TrashRetentionDays)
	resultsMgr := results.NewManager(st, trashMgr, mgr.Acknowledge)
	if err := resultsMgr.FallbackLoad(ctx); err != nil {
		slog.Warn("load last snapshot", "error", err)
	}

	states, cancelStates := broadcaster.Subscribe()
	defer cancelStates()
	busCh, cancelBus := bus.Subscribe()
	defer cancelBus()
	go resultsMgr.Run(ctx, states, busCh)

	// ── Folder watcher ─────────────────────────────────────────────────────
	if watcher, err := events.NewWatcher(bus, cfg.MediaRoots); err != nil {
		slog.Warn("folder watcher unavailable", "error", err)
	} else {
		go watcher.Run(ctx)
	}

	// ── Metrics ────────────────────────────────────────────────────────────
	mets := metrics.New()
	metricStates, cancelMetrics := broadcaster.Subscribe()
	defer cancelMetrics()
	go observeMetrics(ctx, mets, metricStates)

	// ── Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.New()
	if !cfg.ScanPaused && cfg.Schedule != "" {
		if err := sched.SetScanJob(cfg.Schedule, func() {
			slog.Info("scheduled scan triggered")
			opts := scan.Options{Exact: cfg.ExactEnabled(), Similar: cfg.SimilarEnabled()}
			if _, err := mgr.Start(context.Background(), opts); err != nil {
				slog.Warn("scheduled scan start", "error", err)
			}
		}); err != nil {
			slog.Warn("invalid cron expression", "expr", cfg.Schedule, "error", err)
		}
	}

	if err := sched.AddJob("0 3 * * *", func() {
		slog.Info("auto-purge triggered")
		if err := trashMgr.AutoPurge(context.Background()); err != nil {
			slog.Error("auto-purge failed", "error", err)
		}
	}); err != nil {
		slog.Warn("failed to register auto-purge job", "error", err)
	}

	sched.Start()
	defer sched.Stop()

	// ── HTTP server ────────────────────────────────────────────────────────
	srv := api.New(cfg.HTTPAddr, cfg, st, mgr, broadcaster, resultsMgr, sched, mets, version)
	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("twinscan stopped")
}

// observeMetrics mirrors broadcaster transitions into the Prometheus
// collectors.
func observeMetrics(ctx context.Context, m *metrics.Metrics, states <-chan scan.State) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-states:
			if !ok {
				return
			}
			switch s.Phase {
			case scan.PhaseScanning:
				m.ScanProgress.Set(s.Progress)
			case scan.PhaseComplete:
				m.ScansTotal.WithLabelValues("completed").Inc()
				m.ScanProgress.Set(1)
				if s.Result != nil {
					m.DuplicateGroups.Set(float64(len(s.Result.Groups)))
				}
			case scan.PhaseCancelled:
				m.ScansTotal.WithLabelValues("cancelled").Inc()
				m.ScanProgress.Set(0)
			case scan.PhaseError:
				m.ScansTotal.WithLabelValues("failed").Inc()
				m.ScanProgress.Set(0)
			case scan.PhaseIdle:
				m.ScanProgress.Set(0)
			}
		}
	}
}

// parseLogLevel converts a config string ("debug", "info", "warn", "error")
// to its slog.Level equivalent. Unknown values default to Info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
