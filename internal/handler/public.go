package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tellus/tellus/internal/category"
	"github.com/tellus/tellus/internal/gate"
	"github.com/tellus/tellus/internal/handler/dto"
	"github.com/tellus/tellus/internal/middleware"
	"github.com/tellus/tellus/internal/model"
	"github.com/tellus/tellus/internal/service"
	"github.com/tellus/tellus/internal/storage"
)

// multipartMemory is how much of a multipart body is held in memory
// before spilling to temporary files.
const multipartMemory = 1 << 20

// PublicBoxes is the anonymous submitter surface.
type PublicBoxes interface {
	View(ctx context.Context, shareToken, grant string) (*service.BoxView, error)
	Unlock(ctx context.Context, shareToken, secret, ip string) (*gate.Grant, error)
	Submit(ctx context.Context, input service.SubmitInput) (*model.Complaint, error)
	Mine(ctx context.Context, shareToken, grant string, tokens []string) ([]*model.Complaint, error)
	Track(ctx context.Context, trackingToken string) (*model.Complaint, error)
	SubmitFeedback(ctx context.Context, shareToken, grant string, rating int, message string) (*model.Feedback, error)
	ListFeedback(ctx context.Context, shareToken, grant string) ([]*model.Feedback, error)
}

// CategoryLister exposes the current category table.
type CategoryLister interface {
	Categories() []category.Category
}

// PublicHandler handles the unauthenticated box endpoints.
type PublicHandler struct {
	svc        PublicBoxes
	categories CategoryLister
	logger     *slog.Logger
}

// NewPublicHandler creates a new PublicHandler.
func NewPublicHandler(svc PublicBoxes, categories CategoryLister, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{
		svc:        svc,
		categories: categories,
		logger:     logger.With("component", "handler.public"),
	}
}

// Categories handles GET /api/v1/categories.
func (h *PublicHandler) Categories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.NewList(h.categories.Categories()))
}

// View handles GET /api/v1/boxes/{token}.
func (h *PublicHandler) View(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.View(r.Context(), chi.URLParam(r, "token"), grantOf(r))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Unlock handles POST /api/v1/boxes/{token}/unlock.
func (h *PublicHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req dto.UnlockRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	grant, err := h.svc.Unlock(r.Context(), chi.URLParam(r, "token"), req.Secret, middleware.ClientIP(r))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

// Submit handles POST /api/v1/boxes/{token}/complaints. Accepts JSON, or
// multipart with an optional "attachment" file part.
func (h *PublicHandler) Submit(w http.ResponseWriter, r *http.Request) {
	input := service.SubmitInput{
		ShareToken: chi.URLParam(r, "token"),
		Grant:      grantOf(r),
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == middleware.MediaMultipart {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid multipart body")
			return
		}
		defer r.MultipartForm.RemoveAll()

		input.Title = r.FormValue("title")
		input.Message = r.FormValue("message")
		input.Category = r.FormValue("category")
		input.CustomCategory = r.FormValue("custom_category")

		file, header, err := r.FormFile("attachment")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid attachment")
			return
		default:
			defer file.Close()
			input.Attachment = toUpload(file, header)
		}
	} else {
		var req dto.SubmitComplaintRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		input.Title = req.Title
		input.Message = req.Message
		input.Category = req.Category
		input.CustomCategory = req.CustomCategory
	}

	complaint, err := h.svc.Submit(r.Context(), input)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.SubmittedComplaintResponse{
		TrackingToken: complaint.Token,
		Status:        complaint.Status,
		CreatedAt:     complaint.CreatedAt,
	})
}

func toUpload(file multipart.File, header *multipart.FileHeader) *storage.Upload {
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		sniff := make([]byte, 512)
		n, _ := file.Read(sniff)
		contentType = http.DetectContentType(sniff[:n])
		_, _ = file.Seek(0, io.SeekStart)
	}
	return &storage.Upload{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	}
}

// Mine handles GET /api/v1/boxes/{token}/complaints?tokens=a,b.
// Repeated tokens parameters are accepted as well.
func (h *PublicHandler) Mine(w http.ResponseWriter, r *http.Request) {
	var tokens []string
	for _, v := range r.URL.Query()["tokens"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tokens = append(tokens, t)
			}
		}
	}

	complaints, err := h.svc.Mine(r.Context(), chi.URLParam(r, "token"), grantOf(r), tokens)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToTrackedList(complaints))
}

// Track handles GET /api/v1/track/{complaintToken}.
func (h *PublicHandler) Track(w http.ResponseWriter, r *http.Request) {
	complaint, err := h.svc.Track(r.Context(), chi.URLParam(r, "complaintToken"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToTrackedComplaint(complaint))
}

// SubmitFeedback handles POST /api/v1/boxes/{token}/feedback.
func (h *PublicHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req dto.FeedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	fb, err := h.svc.SubmitFeedback(r.Context(), chi.URLParam(r, "token"), grantOf(r), req.Rating, req.Message)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}

// ListFeedback handles GET /api/v1/boxes/{token}/feedback.
func (h *PublicHandler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListFeedback(r.Context(), chi.URLParam(r, "token"), grantOf(r))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(items))
}

func grantOf(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(gate.GrantHeader))
}
