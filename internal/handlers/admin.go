package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/orderengine/internal/platform/httpx"
	"github.com/hanko-field/orderengine/internal/platform/requestctx"
	"github.com/hanko-field/orderengine/internal/services"
)

// AdminHandlers exposes operational endpoints.
type AdminHandlers struct {
	reference services.ReferenceDataService
	limiter   *fixedWindowLimiter
}

// AdminOption customises AdminHandlers.
type AdminOption func(*AdminHandlers)

// WithInvalidationLimit caps cache invalidations per actor to limit calls per window.
func WithInvalidationLimit(limit int, window time.Duration, clock func() time.Time) AdminOption {
	return func(h *AdminHandlers) { h.limiter = newFixedWindowLimiter(limit, window, clock) }
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(reference services.ReferenceDataService, opts ...AdminOption) *AdminHandlers {
	h := &AdminHandlers{reference: reference}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	r.Post("/caches/invalidate", limitByActor(h.limiter, h.invalidateCaches))
}

type invalidateCachesResponse struct {
	Invalidated []string `json:"invalidated"`
	ActorID     string   `json:"actorId,omitempty"`
}

// invalidateCaches drops the reference-data snapshots so the next pricing run reloads them.
func (h *AdminHandlers) invalidateCaches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	names := h.reference.InvalidateAll(ctx)
	httpx.WriteJSON(w, http.StatusOK, invalidateCachesResponse{Invalidated: names, ActorID: requestctx.ActorID(ctx)})
}
