package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tellus/tellus/internal/auth"
	"github.com/tellus/tellus/internal/cache"
	"github.com/tellus/tellus/internal/model"
	"github.com/tellus/tellus/internal/repository"
	"github.com/tellus/tellus/internal/storage"
)

const (
	maxUsernameLength = 64

	// DefaultLoginMinDuration is the floor for a failed sign-in response.
	DefaultLoginMinDuration = 300 * time.Millisecond
)

// ProfileStore persists admin profiles.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p *model.Profile) error
	GetProfileByID(ctx context.Context, id string) (*model.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*model.Profile, error)
	UpdateUsername(ctx context.Context, id, username string) (*model.Profile, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	DeleteAccount(ctx context.Context, id string) (*repository.AccountDeletion, error)
}

// SessionTokens issues and parses session tokens.
type SessionTokens interface {
	Issue(userID, username string) (string, *auth.Session, error)
	Parse(token string) (*auth.Session, error)
}

// AuthResult is a signed-in admin.
type AuthResult struct {
	Token   string         `json:"token"`
	Session *auth.Session  `json:"session"`
	Profile *model.Profile `json:"profile"`
}

// AccountService handles sign-up, sign-in, sessions and profiles.
type AccountService struct {
	profiles ProfileStore
	tokens   SessionTokens
	sessions SessionStore
	boxCache BoxCache
	objects  storage.Store
	logger   *slog.Logger

	// MinLoginDuration pads failed sign-ins.
	MinLoginDuration time.Duration
}

// NewAccountService creates a new AccountService. boxCache and objects may
// be nil.
func NewAccountService(profiles ProfileStore, tokens SessionTokens, sessions SessionStore, boxCache BoxCache, objects storage.Store, logger *slog.Logger) *AccountService {
	return &AccountService{
		profiles:         profiles,
		tokens:           tokens,
		sessions:         sessions,
		boxCache:         boxCache,
		objects:          objects,
		logger:           logger.With("component", "service.account"),
		MinLoginDuration: DefaultLoginMinDuration,
	}
}

// SignUpInput defines input for creating an admin account.
type SignUpInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// SignUp creates a profile and signs it in.
func (s *AccountService) SignUp(ctx context.Context, input SignUpInput) (*AuthResult, error) {
	username, err := normalizeUsername(input.Username)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if err := auth.ValidateNewPassword(input.Password, input.ConfirmPassword); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	profile := &model.Profile{
		ID:           ulid.Make().String(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.profiles.CreateProfile(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	s.logger.Info("admin signed up", "user_id", profile.ID)
	return s.startSession(ctx, profile)
}

// Login verifies credentials. Every failure returns ErrInvalidCredentials
// no sooner than MinLoginDuration after the call started.
func (s *AccountService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	start := time.Now()

	result, err := s.login(ctx, email, password)
	if errors.Is(err, ErrInvalidCredentials) {
		if wait := s.MinLoginDuration - time.Since(start); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
			}
		}
	}
	return result, err
}

func (s *AccountService) login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	profile, err := s.profiles.GetProfileByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			// Spend the same hashing work as a real check.
			_, _ = auth.VerifyPassword(password, dummyHash())
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := auth.VerifyPassword(password, profile.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", "user_id", profile.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return s.startSession(ctx, profile)
}

var dummyHash = sync.OnceValue(func() string {
	hash, err := auth.HashPassword("tellus-timing-equalizer")
	if err != nil {
		return ""
	}
	return hash
})

func (s *AccountService) startSession(ctx context.Context, profile *model.Profile) (*AuthResult, error) {
	token, session, err := s.tokens.Issue(profile.ID, profile.Username)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	if err := s.sessions.RegisterSession(ctx, session); err != nil {
		return nil, fmt.Errorf("register session: %w", err)
	}
	return &AuthResult{Token: token, Session: session, Profile: profile}, nil
}

// Authenticate parses a bearer token and checks it has not been revoked.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*auth.Session, error) {
	session, err := s.tokens.Parse(token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if err := s.sessions.CheckSession(ctx, session); err != nil {
		if errors.Is(err, cache.ErrSessionRevoked) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return session, nil
}

// Logout revokes one session.
func (s *AccountService) Logout(ctx context.Context, session *auth.Session) error {
	return s.sessions.RevokeSession(ctx, session)
}

// GetProfile returns the signed-in admin's profile.
func (s *AccountService) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.profiles.GetProfileByID(ctx, userID)
	if err != nil {
		return nil, mapProfileErr(err)
	}
	return p, nil
}

// UpdateUsername changes the display name.
func (s *AccountService) UpdateUsername(ctx context.Context, userID, username string) (*model.Profile, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}
	p, err := s.profiles.UpdateUsername(ctx, userID, username)
	if err != nil {
		return nil, mapProfileErr(err)
	}
	return p, nil
}

// ChangePassword sets a new password and revokes every other session of
// the admin. The calling session stays valid.
func (s *AccountService) ChangePassword(ctx context.Context, session *auth.Session, password, confirm string) error {
	if err := auth.ValidateNewPassword(password, confirm); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.profiles.UpdatePasswordHash(ctx, session.UserID, hash); err != nil {
		return mapProfileErr(err)
	}

	revoked, err := s.sessions.RevokeUserSessions(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	if err := s.sessions.RegisterSession(ctx, session); err != nil {
		return fmt.Errorf("re-register session: %w", err)
	}

	s.logger.Info("password changed", "user_id", session.UserID, "revoked_sessions", max(revoked-1, 0))
	return nil
}

// DeleteAccount removes the admin and everything they own, then cleans up
// attachments, box cache entries and sessions.
func (s *AccountService) DeleteAccount(ctx context.Context, userID string) error {
	deletion, err := s.profiles.DeleteAccount(ctx, userID)
	if err != nil {
		return mapProfileErr(err)
	}

	deleteObjects(ctx, s.objects, deletion.AttachmentKeys, s.logger)
	if s.boxCache != nil {
		for _, t := range deletion.BoxTokens {
			if err := s.boxCache.DeleteBox(ctx, t); err != nil {
				s.logger.Warn("box cache invalidation failed", "error", err)
			}
		}
	}
	if _, err := s.sessions.RevokeUserSessions(ctx, userID); err != nil {
		s.logger.Warn("session revocation failed", "user_id", userID, "error", err)
	}

	s.logger.Info("account deleted",
		"user_id", userID,
		"boxes", len(deletion.BoxTokens),
		"attachments", len(deletion.AttachmentKeys),
	)
	return nil
}

func normalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", ErrUsernameRequired
	}
	if len([]rune(username)) > maxUsernameLength {
		return "", fmt.Errorf("%w: username is limited to %d characters", ErrTextTooLong, maxUsernameLength)
	}
	return username, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrEmailRequired
	}
	return email, nil
}

func mapProfileErr(err error) error {
	if errors.Is(err, repository.ErrProfileNotFound) {
		return ErrNotFound
	}
	return err
}
