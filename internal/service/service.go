// Package service provides business logic for the application.
//
// Services depend on narrow interfaces over the repository, cache, gate and
// storage packages, and translate their sentinel errors into the ones
// declared here.
package service

import (
	"context"
	"errors"

	"github.com/tellus/tellus/internal/auth"
	"github.com/tellus/tellus/internal/cache"
	"github.com/tellus/tellus/internal/gate"
	"github.com/tellus/tellus/internal/model"
)

// Service errors.
var (
	ErrNotFound           = errors.New("not found")
	ErrTitleRequired      = errors.New("title is required")
	ErrMessageRequired    = errors.New("message is required")
	ErrTextTooLong        = errors.New("text exceeds the allowed length")
	ErrReplyRequired      = errors.New("reply is required")
	ErrUsernameRequired   = errors.New("username is required")
	ErrEmailRequired      = errors.New("a valid email is required")
	ErrUnknownCategory    = errors.New("unknown box category")
	ErrInvalidStatus      = errors.New("invalid complaint status")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
	ErrInvalidRange       = errors.New("range must be week, month, quarter or year")
	ErrInvalidSort        = errors.New("sort must be newest or oldest")
	ErrInvalidEventTypes  = errors.New("event_types must list known events")
	ErrInvalidTargetURL   = errors.New("invalid webhook target URL")
	ErrGateRejected       = errors.New("incorrect box secret")
	ErrAccessRequired     = errors.New("box access grant required")
	ErrRateLimited        = errors.New("too many attempts, try again later")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrUnauthorized       = errors.New("session is invalid or revoked")
	ErrTooManyTokens      = errors.New("too many tokens requested")
)

// BoxStore persists complaint boxes.
type BoxStore interface {
	CreateBox(ctx context.Context, box *model.Box) error
	GetBoxByToken(ctx context.Context, token string) (*model.Box, error)
	GetOwnedBox(ctx context.Context, id, adminID string) (*model.Box, error)
	ListBoxesWithStats(ctx context.Context, adminID string) ([]*model.BoxWithStats, error)
	UpdateBox(ctx context.Context, box *model.Box) error
	DeleteBox(ctx context.Context, id, adminID string) ([]string, error)
	BoxTokenExists(ctx context.Context, token string) (bool, error)
}

// ComplaintStore persists complaints.
type ComplaintStore interface {
	CreateComplaint(ctx context.Context, c *model.Complaint) error
	GetComplaintByToken(ctx context.Context, token string) (*model.Complaint, error)
	GetOwnedComplaint(ctx context.Context, id, adminID string) (*model.Complaint, error)
	ListComplaintsByBox(ctx context.Context, boxID string) ([]*model.Complaint, error)
	ListComplaintsByTokens(ctx context.Context, boxID string, tokens []string) ([]*model.Complaint, error)
	UpdateComplaintStatus(ctx context.Context, id string, status model.Status) (*model.Complaint, error)
	SetComplaintReply(ctx context.Context, id, reply string) (*model.Complaint, error)
	DeleteComplaint(ctx context.Context, id string) (*model.Complaint, error)
	ComplaintTokenExists(ctx context.Context, token string) (bool, error)
}

// FeedbackStore persists feedback.
type FeedbackStore interface {
	CreateFeedback(ctx context.Context, f *model.Feedback) error
	ListFeedback(ctx context.Context, boxID string, limit int) ([]*model.Feedback, error)
}

// BoxCache is the read-through cache for public box lookups.
type BoxCache interface {
	GetBox(ctx context.Context, token string) (*model.Box, error)
	SetBox(ctx context.Context, box *model.Box) error
	DeleteBox(ctx context.Context, token string) error
	IsNegativelyCached(ctx context.Context, token string) (bool, error)
	SetNegativeCache(ctx context.Context, token string) error
}

// SessionStore tracks live session ids.
type SessionStore interface {
	RegisterSession(ctx context.Context, s *auth.Session) error
	CheckSession(ctx context.Context, s *auth.Session) error
	RevokeSession(ctx context.Context, s *auth.Session) error
	RevokeUserSessions(ctx context.Context, userID string) (int, error)
}

// GateLimiter limits secret attempts per box and client.
type GateLimiter interface {
	CheckGateRateLimit(ctx context.Context, boxID, ip string, perMinute, burst int) (*cache.RateLimitResult, error)
}

// Gatekeeper verifies box secrets and grants.
type Gatekeeper interface {
	Unlock(box *model.Box, attempt string) (*gate.Grant, error)
	Authorize(box *model.Box, grantToken string) error
}

// EventPublisher receives box events. Publishing must not block.
type EventPublisher interface {
	PublishAsync(event model.BoxEvent)
}

// CategorySource resolves box categories.
type CategorySource interface {
	Has(key string) bool
	Subcategories(key string) []string
	RequiresCustomInput(key string) bool
	Resolve(boxCategory, selection, custom string) (string, error)
}

type noopPublisher struct{}

func (noopPublisher) PublishAsync(model.BoxEvent) {}
