package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter creates and returns a configured Chi router.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	// ── Health & metrics ──────────────────────────────────────────────────────
	r.Get("/health", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	// Form-compatible scoring endpoint used by the dashboard.
	r.Post("/predict", h.AnalyzeTransaction)

	// ── API v1 ────────────────────────────────────────────────────────────────
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", h.AnalyzeTransaction)
			r.Get("/", h.ListTransactions)
			r.Post("/sample", h.SampleTransaction)
			r.Get("/{id}", h.GetTransaction)
		})

		r.Get("/statistics", h.GetStatistics)
		r.Get("/alerts", h.ListAlerts)

		r.Post("/admin/reset", h.Reset)
	})

	return r
}

// requestLogger emits one zap record per request and feeds the HTTP metrics.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		if h.metrics != nil {
			h.metrics.ObserveHTTP(r.Method, route, ww.Status(), elapsed.Seconds())
		}

		h.logger.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
