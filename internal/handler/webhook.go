package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tellus/tellus/internal/auth"
	"github.com/tellus/tellus/internal/handler/dto"
	"github.com/tellus/tellus/internal/model"
	"github.com/tellus/tellus/internal/service"
)

// Webhooks manages webhook endpoints of an admin.
type Webhooks interface {
	Create(ctx context.Context, input service.CreateWebhookInput) (*service.CreatedWebhook, error)
	List(ctx context.Context, adminID string) ([]*model.WebhookEndpoint, error)
	Delete(ctx context.Context, id, adminID string) error
	Deliveries(ctx context.Context, id, adminID string, limit int) ([]*model.WebhookDelivery, error)
}

// WebhookHandler handles webhook management endpoints.
type WebhookHandler struct {
	svc    Webhooks
	logger *slog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(svc Webhooks, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		svc:    svc,
		logger: logger.With("component", "handler.webhook"),
	}
}

// Create handles POST /api/v1/admin/webhooks. The signing secret appears
// in this response only.
func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateWebhookRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.svc.Create(r.Context(), service.CreateWebhookInput{
		AdminID:    auth.UserIDFromContext(r.Context()),
		BoxID:      req.BoxID,
		Name:       req.Name,
		TargetURL:  req.TargetURL,
		EventTypes: req.EventTypes,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// List handles GET /api/v1/admin/webhooks.
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.svc.List(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(endpoints))
}

// Delete handles DELETE /api/v1/admin/webhooks/{id}.
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context())); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Deliveries handles GET /api/v1/admin/webhooks/{id}/deliveries?limit=.
func (h *WebhookHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	limit := service.DefaultDeliveryListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	deliveries, err := h.svc.Deliveries(r.Context(), chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context()), limit)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(deliveries))
}
