// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tellus/tellus/internal/auth"
	"github.com/tellus/tellus/internal/category"
	"github.com/tellus/tellus/internal/handler/dto"
	"github.com/tellus/tellus/internal/middleware"
	"github.com/tellus/tellus/internal/service"
	"github.com/tellus/tellus/internal/storage"
)

// NotFound handles 404 responses.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
}

// MethodNotAllowed handles 405 responses.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message, Code: code})
}

// decodeJSON reads a JSON body into dst. It writes the error response
// itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Request body is required")
	default:
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
	}
	return false
}

// errorMapping maps a sentinel to its HTTP status and code. Entries are
// matched in order with errors.Is.
type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{service.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},

	{service.ErrTitleRequired, http.StatusBadRequest, "TITLE_REQUIRED"},
	{service.ErrMessageRequired, http.StatusBadRequest, "MESSAGE_REQUIRED"},
	{service.ErrTextTooLong, http.StatusBadRequest, "TEXT_TOO_LONG"},
	{service.ErrReplyRequired, http.StatusBadRequest, "REPLY_REQUIRED"},
	{service.ErrUsernameRequired, http.StatusBadRequest, "USERNAME_REQUIRED"},
	{service.ErrEmailRequired, http.StatusBadRequest, "INVALID_EMAIL"},
	{service.ErrUnknownCategory, http.StatusBadRequest, "UNKNOWN_CATEGORY"},
	{service.ErrInvalidStatus, http.StatusBadRequest, "INVALID_STATUS"},
	{service.ErrInvalidRating, http.StatusBadRequest, "INVALID_RATING"},
	{service.ErrInvalidRange, http.StatusBadRequest, "INVALID_RANGE"},
	{service.ErrInvalidSort, http.StatusBadRequest, "INVALID_SORT"},
	{service.ErrInvalidEventTypes, http.StatusBadRequest, "INVALID_EVENT_TYPES"},
	{service.ErrInvalidTargetURL, http.StatusBadRequest, "INVALID_TARGET_URL"},
	{service.ErrTooManyTokens, http.StatusBadRequest, "TOO_MANY_TOKENS"},

	{category.ErrCategoryRequired, http.StatusBadRequest, "CATEGORY_REQUIRED"},
	{category.ErrCustomCategoryRequired, http.StatusBadRequest, "CUSTOM_CATEGORY_REQUIRED"},
	{category.ErrUnknownSubcategory, http.StatusBadRequest, "UNKNOWN_CATEGORY"},
	{category.ErrLabelTooLong, http.StatusBadRequest, "TEXT_TOO_LONG"},

	{storage.ErrTooLarge, http.StatusBadRequest, "ATTACHMENT_TOO_LARGE"},
	{storage.ErrContentType, http.StatusBadRequest, "ATTACHMENT_TYPE"},
	{storage.ErrEmptyAttachment, http.StatusBadRequest, "ATTACHMENT_EMPTY"},

	{auth.ErrPasswordTooShort, http.StatusBadRequest, "PASSWORD_TOO_SHORT"},
	{auth.ErrPasswordMismatch, http.StatusBadRequest, "PASSWORD_MISMATCH"},

	{service.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{service.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{service.ErrGateRejected, http.StatusForbidden, "GATE_REJECTED"},
	{service.ErrAccessRequired, http.StatusForbidden, "ACCESS_REQUIRED"},
	{service.ErrEmailTaken, http.StatusConflict, "EMAIL_TAKEN"},
}

// handleServiceError maps service errors to HTTP responses. Anything
// unmapped is logged and reported as a bare 500.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var limited *service.RateLimitError
	if errors.As(err, &limited) {
		middleware.WriteRateLimited(w, limited.RetryAfter)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, publicMessage(m.status, err))
			return
		}
	}

	logger.Error("request failed",
		"request_id", middleware.GetRequestID(r.Context()),
		"route", r.Method+" "+routeOf(r),
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}

// publicMessage keeps validation detail and hides the rest behind the
// status text.
func publicMessage(status int, err error) string {
	if status == http.StatusBadRequest || status == http.StatusConflict {
		return err.Error()
	}
	return http.StatusText(status)
}

func routeOf(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
