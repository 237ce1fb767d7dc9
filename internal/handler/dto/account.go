package dto

import (
	"time"

	"github.com/tellus/tellus/internal/model"
)

// SignUpRequest creates an admin account.
type SignUpRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// LoginRequest signs an admin in.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse carries a new bearer session.
type SessionResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Profile   *model.Profile `json:"profile"`
}

// UpdateProfileRequest changes the username.
type UpdateProfileRequest struct {
	Username string `json:"username"`
}

// ChangePasswordRequest sets a new password.
type ChangePasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}
