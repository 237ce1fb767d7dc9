package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tellus/tellus/internal/auth"
	"github.com/tellus/tellus/internal/handler/dto"
	"github.com/tellus/tellus/internal/model"
	"github.com/tellus/tellus/internal/service"
)

// Accounts manages admin accounts and their sessions.
type Accounts interface {
	SignUp(ctx context.Context, input service.SignUpInput) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	Logout(ctx context.Context, session *auth.Session) error
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpdateUsername(ctx context.Context, userID, username string) (*model.Profile, error)
	ChangePassword(ctx context.Context, session *auth.Session, password, confirm string) error
	DeleteAccount(ctx context.Context, userID string) error
}

// AccountHandler handles sign-up, sign-in and profile endpoints.
type AccountHandler struct {
	svc    Accounts
	logger *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(svc Accounts, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		svc:    svc,
		logger: logger.With("component", "handler.account"),
	}
}

// SignUp handles POST /api/v1/auth/signup.
func (h *AccountHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req dto.SignUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.SignUp(r.Context(), service.SignUpInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(result))
}

// Login handles POST /api/v1/auth/login.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(result))
}

// Logout handles POST /api/v1/auth/logout.
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), auth.SessionFromContext(r.Context())); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Profile handles GET /api/v1/profile.
func (h *AccountHandler) Profile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.svc.GetProfile(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// UpdateProfile handles PATCH /api/v1/profile.
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile, err := h.svc.UpdateUsername(r.Context(), auth.UserIDFromContext(r.Context()), req.Username)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// ChangePassword handles PUT /api/v1/profile/password. Other sessions of
// the account are revoked.
func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.svc.ChangePassword(r.Context(), auth.SessionFromContext(r.Context()), req.Password, req.ConfirmPassword); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAccount handles DELETE /api/v1/profile.
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if err := h.svc.DeleteAccount(r.Context(), userID); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	h.logger.Info("account deleted", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

func toSessionResponse(result *service.AuthResult) dto.SessionResponse {
	return dto.SessionResponse{
		Token:     result.Token,
		ExpiresAt: result.Session.ExpiresAt,
		Profile:   result.Profile,
	}
}
