// Package ops exposes the operational HTTP surface: health, metrics and a
// read-only view of the pending queue and audit trail. Nothing here mutates
// relay state.
package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"codegate/internal/audit"
	"codegate/internal/pending"
)

const auditPageSize = 50

// PendingLister is the slice of the registry the ops surface reads.
type PendingLister interface {
	List(ctx context.Context) ([]pending.Entry, error)
}

// AuditReader returns recent audit events, newest first.
type AuditReader interface {
	Recent(ctx context.Context, n int) ([]audit.Event, error)
}

// HealthChecker reports backing-store reachability. A nil checker means the
// process has no external store and is healthy whenever it is serving.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type Handler struct {
	logger  *slog.Logger
	pending PendingLister
	audit   AuditReader
	health  HealthChecker
}

func New(pendingStore PendingLister, auditStore AuditReader, health HealthChecker, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		pending: pendingStore,
		audit:   auditStore,
		health:  health,
	}
}

// Router wires the ops endpoints.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.handleHealth)
	r.Get("/pending", h.handlePending)
	r.Get("/audit", h.handleAudit)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Health(r.Context()); err != nil {
			h.logger.ErrorContext(r.Context(), "health check failed", "err", err)
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	entries, err := h.pending.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "pending list failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	events, err := h.audit.Recent(r.Context(), auditPageSize)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit read failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}
	h.writeJSON(w, http.StatusOK, events)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response encoding failed", "err", err)
	}
}
