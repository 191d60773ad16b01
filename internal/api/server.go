package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/twinscan/twinscan/internal/api/handlers"
	"github.com/twinscan/twinscan/internal/config"
	"github.com/twinscan/twinscan/internal/metrics"
	"github.com/twinscan/twinscan/internal/results"
	"github.com/twinscan/twinscan/internal/scan"
	"github.com/twinscan/twinscan/internal/scheduler"
	"github.com/twinscan/twinscan/internal/store"
)

// Server holds the HTTP server and all handler dependencies.
type Server struct {
	addr string
	srv  *http.Server
}

// New wires all routes and returns a Server ready to Run.
func New(
	addr string,
	cfg *config.Config,
	st *store.Store,
	mgr *scan.Manager,
	broadcaster *scan.Broadcaster,
	res *results.Manager,
	sched *scheduler.Scheduler,
	mets *metrics.Metrics,
	version string,
) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	statusH := &handlers.StatusHandler{Broadcaster: broadcaster, Results: res, Sched: sched, Version: version}
	scansH := &handlers.ScansHandler{
		Manager:        mgr,
		DefaultExact:   cfg.ExactEnabled(),
		DefaultSimilar: cfg.SimilarEnabled(),
	}
	groupsH := &handlers.GroupsHandler{Results: res, ConfirmBulkDelete: cfg.ConfirmBulkDelete}
	filesH := &handlers.FilesHandler{Results: res}
	configH := &handlers.ConfigHandler{Cfg: cfg, Store: st, Results: res}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", statusH.ServeHTTP)

		r.Post("/scan", scansH.Create)
		r.Delete("/scan", scansH.Cancel)

		r.Get("/results", groupsH.List)
		r.Get("/results/selection", groupsH.Selection)
		r.Post("/results/selection/toggle", groupsH.Toggle)
		r.Post("/results/keep-oldest", groupsH.BulkKeepOldest)
		r.Post("/results/delete", groupsH.Delete)
		r.Post("/results/groups/{uid}/toggle", groupsH.ToggleGroup)
		r.Post("/results/groups/{uid}/keep-oldest", groupsH.KeepOldest)
		r.Post("/results/groups/{uid}/keep-newest", groupsH.KeepNewest)
		r.Post("/results/groups/{uid}/hide", groupsH.Hide)
		r.Post("/results/groups/{uid}/flag", groupsH.Flag)

		r.Get("/files/thumbnail", filesH.Thumbnail)

		r.Get("/config", configH.Get)
		r.Patch("/config", configH.Update)
	})

	if mets != nil {
		r.Handle("/metrics", mets.Handler())
	}

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: r},
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		return s.srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
