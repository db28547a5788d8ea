// ABOUTME: Read-only HTTP server for monitoring
// ABOUTME: Serves Prometheus metrics, a health check and the plain-text dashboard
package web

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/harperreed/cadence/metrics"
	"github.com/harperreed/cadence/models"
	"github.com/harperreed/cadence/ratelimit"
	"github.com/harperreed/cadence/viz"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Server struct {
	db      *sql.DB
	limiter *ratelimit.Limiter
	metrics *metrics.Manager
	loc     *time.Location
	log     zerolog.Logger
	mux     *http.ServeMux
}

func NewServer(database *sql.DB, limiter *ratelimit.Limiter, m *metrics.Manager, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		db:      database,
		limiter: limiter,
		metrics: m,
		loc:     loc,
		log:     log.Logger,
		mux:     http.NewServeMux(),
	}

	s.mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/", s.handleDashboard)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("starting monitoring server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		http.Error(w, "database unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	ctx := r.Context()

	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().In(s.loc).Format(models.QueueDateFormat)
	} else if _, err := time.Parse(models.QueueDateFormat, date); err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	var limits *ratelimit.Status
	if s.limiter != nil {
		st, err := s.limiter.Status(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to read rate limits")
		} else {
			limits = st
		}
	}

	stats, err := viz.GenerateDashboardStats(ctx, s.db, date, limits)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(viz.RenderDashboard(stats)))
}
