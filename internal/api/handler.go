package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"cardshield/fraud-api/internal/analysis"
	"cardshield/fraud-api/internal/domain"
	apperrors "cardshield/fraud-api/internal/errors"
	"cardshield/fraud-api/internal/metrics"
	"cardshield/fraud-api/internal/store"
)

// Limits for the list endpoints.
type Limits struct {
	Recent int // default page size for GET /transactions
	Alerts int // default page size for GET /alerts
	Max    int // upper bound accepted for ?limit
}

// DefaultLimits mirrors the dashboard: last 10 transactions, last 5 alerts.
var DefaultLimits = Limits{Recent: store.DefaultRecent, Alerts: store.DefaultAlerts, Max: store.DefaultCapacity}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	service *analysis.Service
	store   store.Store
	metrics *metrics.Metrics
	logger  *zap.Logger
	limits  Limits
	version string
}

// NewHandler creates a Handler wired to the given dependencies. m may be nil.
func NewHandler(svc *analysis.Service, s store.Store, m *metrics.Metrics, logger *zap.Logger, limits Limits, version string) *Handler {
	if limits.Recent <= 0 {
		limits.Recent = DefaultLimits.Recent
	}
	if limits.Alerts <= 0 {
		limits.Alerts = DefaultLimits.Alerts
	}
	if limits.Max <= 0 {
		limits.Max = DefaultLimits.Max
	}
	return &Handler{service: svc, store: s, metrics: m, logger: logger, limits: limits, version: version}
}

// ─── GET /health ──────────────────────────────────────────────────────────────

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.ok(w, map[string]string{
		"status":    "healthy",
		"service":   "cardshield-fraud-api",
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ─── POST /api/v1/transactions, POST /predict ─────────────────────────────────

// AnalyzeTransaction accepts a transaction payload, scores it, records it,
// and returns the full risk analysis synchronously.
func (h *Handler) AnalyzeTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if h.metrics != nil {
			h.metrics.ObserveRejected("decode")
		}
		h.badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}

	st, err := h.service.Analyze(r.Context(), &req, analysis.SourceHTTP)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.created(w, st)
}

// ─── POST /api/v1/transactions/sample ─────────────────────────────────────────

// SampleTransaction generates a random transaction, scores and records it.
func (h *Handler) SampleTransaction(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Sample(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.created(w, st)
}

// ─── GET /api/v1/transactions ─────────────────────────────────────────────────

// ListTransactions returns the most recent transactions, newest first.
//
// Query params:
//
//	limit: number of entries (default 10, max 50)
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.parseLimit(w, r, h.limits.Recent)
	if !ok {
		return
	}
	txs, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.ok(w, txs)
}

// ─── GET /api/v1/transactions/{id} ───────────────────────────────────────────

// GetTransaction retrieves a retained transaction by its ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := h.store.Get(r.Context(), id)
	if err != nil {
		if apperrors.Is(err, apperrors.NotFound) {
			h.notFound(w, fmt.Sprintf("transaction '%s' not found", id))
			return
		}
		h.internalError(w, err)
		return
	}
	h.ok(w, st)
}

// ─── GET /api/v1/statistics ───────────────────────────────────────────────────

// GetStatistics returns the running totals and detection rate.
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Statistics(r.Context())
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.ok(w, stats)
}

// ─── GET /api/v1/alerts ───────────────────────────────────────────────────────

// ListAlerts returns the most recent fraud verdicts.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.parseLimit(w, r, h.limits.Alerts)
	if !ok {
		return
	}
	alerts, err := h.store.Alerts(r.Context(), limit)
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.ok(w, alerts)
}

// ─── POST /api/v1/admin/reset ─────────────────────────────────────────────────

// Reset clears history and statistics.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reset(r.Context()); err != nil {
		h.internalError(w, err)
		return
	}
	h.logger.Info("history and statistics reset")
	noContent(w)
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func (h *Handler) parseLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > h.limits.Max {
		h.badRequest(w, "INVALID_PARAM", fmt.Sprintf("limit must be an integer between 1 and %d", h.limits.Max))
		return 0, false
	}
	return n, true
}

// writeServiceError maps analysis errors onto HTTP responses.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	if apperrors.Is(err, apperrors.Invalid) {
		var ve *apperrors.ValidationErrors
		var fields []string
		if errors.As(err, &ve) {
			fields = ve.Fields()
		}
		h.badRequest(w, "VALIDATION_ERROR", err.Error(), fields...)
		return
	}
	h.internalError(w, err)
}
