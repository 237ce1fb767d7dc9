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

// BoxManager is the box CRUD surface for signed-in admins.
type BoxManager interface {
	CreateBox(ctx context.Context, input service.CreateBoxInput) (*model.Box, error)
	ListBoxes(ctx context.Context, adminID string) ([]*model.BoxWithStats, error)
	GetOwnedBox(ctx context.Context, id, adminID string) (*model.Box, error)
	UpdateBox(ctx context.Context, input service.UpdateBoxInput) (*model.Box, error)
	DeleteBox(ctx context.Context, id, adminID string) error
}

// ComplaintManager is the complaint moderation surface.
type ComplaintManager interface {
	ListComplaints(ctx context.Context, boxID, adminID string, query service.ComplaintQuery) ([]*model.Complaint, error)
	SetStatus(ctx context.Context, id, adminID, status string) (*model.Complaint, error)
	Reply(ctx context.Context, id, adminID, reply string) (*model.Complaint, error)
	Delete(ctx context.Context, id, adminID string) error
	ListFeedback(ctx context.Context, boxID, adminID string, limit int) ([]*model.Feedback, error)
}

// AnalyticsReader produces per-box summaries.
type AnalyticsReader interface {
	Summary(ctx context.Context, boxID, adminID, rangeName string) (*model.AnalyticsSummary, error)
}

// AdminHandler serves the owner dashboard endpoints. Every route runs
// behind RequireSession.
type AdminHandler struct {
	boxes      BoxManager
	complaints ComplaintManager
	analytics  AnalyticsReader
	logger     *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(boxes BoxManager, complaints ComplaintManager, analytics AnalyticsReader, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		boxes:      boxes,
		complaints: complaints,
		analytics:  analytics,
		logger:     logger.With("component", "handler.admin"),
	}
}

// ListBoxes handles GET /api/v1/admin/boxes.
func (h *AdminHandler) ListBoxes(w http.ResponseWriter, r *http.Request) {
	boxes, err := h.boxes.ListBoxes(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToBoxListResponse(boxes))
}

// CreateBox handles POST /api/v1/admin/boxes.
func (h *AdminHandler) CreateBox(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateBoxRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	box, err := h.boxes.CreateBox(r.Context(), service.CreateBoxInput{
		AdminID:     auth.UserIDFromContext(r.Context()),
		Title:       req.Title,
		Description: req.Description,
		Secret:      req.Secret,
		Category:    req.Category,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.ToBoxResponse(box))
}

// GetBox handles GET /api/v1/admin/boxes/{id}.
func (h *AdminHandler) GetBox(w http.ResponseWriter, r *http.Request) {
	box, err := h.boxes.GetOwnedBox(r.Context(), chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToBoxResponse(box))
}

// UpdateBox handles PATCH /api/v1/admin/boxes/{id}.
func (h *AdminHandler) UpdateBox(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateBoxRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	box, err := h.boxes.UpdateBox(r.Context(), service.UpdateBoxInput{
		ID:          chi.URLParam(r, "id"),
		AdminID:     auth.UserIDFromContext(r.Context()),
		Title:       req.Title,
		Description: req.Description,
		Secret:      req.Secret,
		Category:    req.Category,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToBoxResponse(box))
}

// DeleteBox handles DELETE /api/v1/admin/boxes/{id}.
func (h *AdminHandler) DeleteBox(w http.ResponseWriter, r *http.Request) {
	if err := h.boxes.DeleteBox(r.Context(), chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context())); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListComplaints handles GET /api/v1/admin/boxes/{id}/complaints?q=&status=&sort=.
func (h *AdminHandler) ListComplaints(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	complaints, err := h.complaints.ListComplaints(r.Context(), chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context()),
		service.ComplaintQuery{
			Q:      query.Get("q"),
			Status: query.Get("status"),
			Sort:   query.Get("sort"),
		})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(complaints))
}

// SetStatus handles PATCH /api/v1/admin/complaints/{id}/status.
func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req dto.StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	complaint, err := h.complaints.SetStatus(r.Context(), chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context()), req.Status)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, complaint)
}

// Reply handles PUT /api/v1/admin/complaints/{id}/reply.
func (h *AdminHandler) Reply(w http.ResponseWriter, r *http.Request) {
	var req dto.ReplyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	complaint, err := h.complaints.Reply(r.Context(), chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context()), req.Reply)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, complaint)
}

// DeleteComplaint handles DELETE /api/v1/admin/complaints/{id}.
func (h *AdminHandler) DeleteComplaint(w http.ResponseWriter, r *http.Request) {
	if err := h.complaints.Delete(r.Context(), chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context())); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFeedback handles GET /api/v1/admin/boxes/{id}/feedback?limit=.
func (h *AdminHandler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	items, err := h.complaints.ListFeedback(r.Context(), chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context()), limit)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(items))
}

// Analytics handles GET /api/v1/admin/boxes/{id}/analytics?range=week|month|quarter|year.
func (h *AdminHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	summary, err := h.analytics.Summary(r.Context(), chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context()), r.URL.Query().Get("range"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
