// Package api exposes the backup engine to operators over HTTP. It only
// calls the orchestrator and the status service. Authentication is left to
// the fronting proxy.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/davexpro/hybrid-backup/internal/db"
	"github.com/davexpro/hybrid-backup/internal/status"
)

type Backup interface {
	Trigger(ctx context.Context) error
}

type StatusService interface {
	GetStatus(ctx context.Context) (*status.Status, error)
	GetLogs(ctx context.Context, limit int) ([]db.BackupLog, error)
	GetStatistics(ctx context.Context, windowDays int) (*status.Statistics, error)
}

type Handler struct {
	backup Backup
	status StatusService
	log    logrus.FieldLogger
}

func NewHandler(b Backup, s StatusService, log logrus.FieldLogger) *Handler {
	return &Handler{backup: b, status: s, log: log.WithField("component", "api")}
}

// Routes builds the chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/backup", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(30 * time.Second))
		r.Post("/trigger", h.Trigger)
		r.Get("/status", h.Status)
		r.Get("/logs", h.Logs)
		r.Get("/statistics", h.Statistics)
	})
	return r
}

func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).Seconds(),
				"request_id": chimiddleware.GetReqID(r.Context()),
			}).Debug("HTTP request")
		})
	}
}
