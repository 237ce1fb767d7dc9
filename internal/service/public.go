package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tellus/tellus/internal/gate"
	"github.com/tellus/tellus/internal/metrics"
	"github.com/tellus/tellus/internal/model"
	"github.com/tellus/tellus/internal/repository"
	"github.com/tellus/tellus/internal/storage"
	"github.com/tellus/tellus/internal/token"
)

const (
	maxMessageLength         = 5000
	maxFeedbackMessageLength = 1000

	// MaxLookupTokens caps one "your complaints" request.
	MaxLookupTokens = 100
)

// BoxResolver finds a box by share token.
type BoxResolver interface {
	Resolve(ctx context.Context, shareToken string) (*model.Box, error)
}

// RateLimitError reports a rejected attempt and when to retry.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return ErrRateLimited.Error() }

// Is lets errors.Is match ErrRateLimited.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// GateLimit is the per box and client budget for unlock attempts.
type GateLimit struct {
	PerMinute int
	Burst     int
}

// BoxView is what a visitor sees of a box. Locked views carry the title
// only.
type BoxView struct {
	ID                  string   `json:"id"`
	Token               string   `json:"token"`
	Title               string   `json:"title"`
	Description         string   `json:"description,omitempty"`
	Category            string   `json:"category,omitempty"`
	CategoryLabel       string   `json:"category_label,omitempty"`
	Subcategories       []string `json:"subcategories"`
	RequiresCustomInput bool     `json:"requires_custom_category"`
	Locked              bool     `json:"locked"`
	RequiresSecret      bool     `json:"requires_secret"`
}

// PublicService handles the anonymous submitter operations.
type PublicService struct {
	boxes      BoxResolver
	complaints ComplaintStore
	feedback   FeedbackStore
	gate       Gatekeeper
	limiter    GateLimiter
	limit      GateLimit
	objects    storage.Store
	categories CategorySource
	tokens     *token.Generator
	events     EventPublisher
	logger     *slog.Logger
	metrics    metrics.Recorder
}

// PublicDeps groups the collaborators of PublicService.
type PublicDeps struct {
	Boxes      BoxResolver
	Complaints ComplaintStore
	Feedback   FeedbackStore
	Gate       Gatekeeper
	Limiter    GateLimiter // optional
	Limit      GateLimit
	Objects    storage.Store
	Categories CategorySource
	Events     EventPublisher // optional
	Logger     *slog.Logger
	Metrics    metrics.Recorder // optional
}

// NewPublicService creates a new PublicService.
func NewPublicService(deps PublicDeps) *PublicService {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	if deps.Events == nil {
		deps.Events = noopPublisher{}
	}
	return &PublicService{
		boxes:      deps.Boxes,
		complaints: deps.Complaints,
		feedback:   deps.Feedback,
		gate:       deps.Gate,
		limiter:    deps.Limiter,
		limit:      deps.Limit,
		objects:    deps.Objects,
		categories: deps.Categories,
		tokens:     token.NewGenerator(deps.Complaints.ComplaintTokenExists),
		events:     deps.Events,
		logger:     deps.Logger.With("component", "service.public"),
		metrics:    deps.Metrics,
	}
}

// labeler is implemented by category sources that know display labels.
type labeler interface {
	Label(key string) string
}

// View returns the visitor view of a box. A missing or stale grant on a
// gated box yields a locked view rather than an error.
func (s *PublicService) View(ctx context.Context, shareToken, grant string) (*BoxView, error) {
	box, err := s.boxes.Resolve(ctx, shareToken)
	if err != nil {
		return nil, err
	}

	view := &BoxView{
		ID:             box.ID,
		Token:          box.Token,
		Title:          box.Title,
		RequiresSecret: box.RequiresSecret(),
		Subcategories:  []string{},
	}
	if err := s.gate.Authorize(box, grant); err != nil {
		view.Locked = true
		return view, nil
	}

	view.Description = box.Description
	view.Category = box.Category
	if l, ok := s.categories.(labeler); ok && box.Category != "" {
		view.CategoryLabel = l.Label(box.Category)
	}
	view.Subcategories = s.categories.Subcategories(box.Category)
	view.RequiresCustomInput = s.categories.RequiresCustomInput(box.Category)
	return view, nil
}

// Unlock checks secret against the box and returns an access grant.
// Attempts are limited per box and client IP.
func (s *PublicService) Unlock(ctx context.Context, shareToken, secret, ip string) (*gate.Grant, error) {
	box, err := s.boxes.Resolve(ctx, shareToken)
	if err != nil {
		return nil, err
	}

	if s.limiter != nil && box.RequiresSecret() {
		result, err := s.limiter.CheckGateRateLimit(ctx, box.ID, ip, s.limit.PerMinute, s.limit.Burst)
		if err != nil {
			// Fail open; the argon2 cost still bounds guessing.
			s.logger.Warn("gate rate limit check failed", "error", err)
		} else if !result.Allowed {
			s.metrics.IncGateAttempt(metrics.GateLimited)
			return nil, &RateLimitError{RetryAfter: result.RetryAfter}
		}
	}

	grant, err := s.gate.Unlock(box, secret)
	if err != nil {
		if errors.Is(err, gate.ErrSecretMismatch) {
			s.metrics.IncGateAttempt(metrics.GateRejected)
			s.logger.Info("box unlock rejected", "box_id", box.ID)
			return nil, ErrGateRejected
		}
		return nil, err
	}

	s.metrics.IncGateAttempt(metrics.GateAccepted)
	return grant, nil
}

// SubmitInput is an anonymous complaint submission.
type SubmitInput struct {
	ShareToken     string
	Grant          string
	Title          string
	Message        string
	Category       string
	CustomCategory string
	Attachment     *storage.Upload
}

// Submit validates and stores a complaint. Every check runs before any
// write; a failed upload aborts the submission.
func (s *PublicService) Submit(ctx context.Context, input SubmitInput) (*model.Complaint, error) {
	box, err := s.authorizedBox(ctx, input.ShareToken, input.Grant)
	if err != nil {
		return nil, err
	}

	title, err := normalizeTitle(input.Title)
	if err != nil {
		return nil, err
	}
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, ErrMessageRequired
	}
	if len([]rune(message)) > maxMessageLength {
		return nil, fmt.Errorf("%w: at most %d characters", ErrTextTooLong, maxMessageLength)
	}
	label, err := s.categories.Resolve(box.Category, input.Category, input.CustomCategory)
	if err != nil {
		return nil, err
	}
	if input.Attachment != nil {
		if err := input.Attachment.Validate(); err != nil {
			return nil, err
		}
	}

	trackingToken, err := s.tokens.Complaint(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate complaint token: %w", err)
	}

	now := time.Now().UTC()
	complaint := &model.Complaint{
		ID:        ulid.Make().String(),
		BoxID:     box.ID,
		Title:     title,
		Message:   message,
		Status:    model.StatusReceived,
		Token:     trackingToken,
		Category:  label,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if input.Attachment != nil {
		attachment, err := s.upload(ctx, trackingToken, input.Attachment)
		if err != nil {
			return nil, err
		}
		complaint.Attachment = attachment
	}

	if err := s.complaints.CreateComplaint(ctx, complaint); err != nil {
		if complaint.Attachment != nil {
			deleteObjects(ctx, s.objects, []string{complaint.Attachment.Key}, s.logger)
		}
		if errors.Is(err, repository.ErrTokenExists) {
			return nil, fmt.Errorf("create complaint: %w", token.ErrTokenExhausted)
		}
		return nil, fmt.Errorf("create complaint: %w", err)
	}

	s.metrics.IncComplaintSubmitted()
	s.events.PublishAsync(model.NewComplaintEvent(model.EventComplaintSubmitted, box, complaint))
	s.logger.Info("complaint submitted", "box_id", box.ID, "attachment", complaint.Attachment != nil)
	return complaint, nil
}

func (s *PublicService) upload(ctx context.Context, trackingToken string, u *storage.Upload) (*model.Attachment, error) {
	key, err := storage.AttachmentKey(trackingToken, u.ContentType)
	if err != nil {
		return nil, fmt.Errorf("attachment key: %w", err)
	}
	if err := s.objects.Put(ctx, key, u.Body, u.ContentType); err != nil {
		return nil, fmt.Errorf("upload attachment: %w", err)
	}
	return &model.Attachment{
		URL:         s.objects.URL(key),
		Name:        u.Filename,
		ContentType: u.ContentType,
		Key:         key,
	}, nil
}

// Mine returns the complaints of this box among tokens, newest first.
// Malformed tokens and tokens of other boxes are ignored.
func (s *PublicService) Mine(ctx context.Context, shareToken, grant string, tokens []string) ([]*model.Complaint, error) {
	if len(tokens) > MaxLookupTokens {
		return nil, ErrTooManyTokens
	}
	box, err := s.authorizedBox(ctx, shareToken, grant)
	if err != nil {
		return nil, err
	}

	normalized := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = token.NormalizeComplaintToken(t)
		if token.IsComplaintToken(t) {
			normalized = append(normalized, t)
		}
	}
	if len(normalized) == 0 {
		return []*model.Complaint{}, nil
	}
	return s.complaints.ListComplaintsByTokens(ctx, box.ID, normalized)
}

// Track returns a complaint by its tracking token. Input is normalized to
// upper case.
func (s *PublicService) Track(ctx context.Context, trackingToken string) (*model.Complaint, error) {
	trackingToken = token.NormalizeComplaintToken(trackingToken)
	if !token.IsComplaintToken(trackingToken) {
		return nil, ErrNotFound
	}
	c, err := s.complaints.GetComplaintByToken(ctx, trackingToken)
	if err != nil {
		return nil, mapComplaintErr(err)
	}
	return c, nil
}

// SubmitFeedback stores an anonymous rating for a box.
func (s *PublicService) SubmitFeedback(ctx context.Context, shareToken, grant string, rating int, message string) (*model.Feedback, error) {
	box, err := s.authorizedBox(ctx, shareToken, grant)
	if err != nil {
		return nil, err
	}
	if !model.ValidRating(rating) {
		return nil, ErrInvalidRating
	}
	message = strings.TrimSpace(message)
	if len([]rune(message)) > maxFeedbackMessageLength {
		return nil, fmt.Errorf("%w: at most %d characters", ErrTextTooLong, maxFeedbackMessageLength)
	}

	f := &model.Feedback{
		ID:        ulid.Make().String(),
		BoxID:     box.ID,
		Rating:    rating,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.feedback.CreateFeedback(ctx, f); err != nil {
		return nil, err
	}

	s.metrics.IncFeedbackSubmitted()
	s.events.PublishAsync(model.NewFeedbackEvent(box, f))
	return f, nil
}

// ListFeedback returns the latest feedback of a box.
func (s *PublicService) ListFeedback(ctx context.Context, shareToken, grant string) ([]*model.Feedback, error) {
	box, err := s.authorizedBox(ctx, shareToken, grant)
	if err != nil {
		return nil, err
	}
	return s.feedback.ListFeedback(ctx, box.ID, repository.DefaultFeedbackLimit)
}

func (s *PublicService) authorizedBox(ctx context.Context, shareToken, grant string) (*model.Box, error) {
	box, err := s.boxes.Resolve(ctx, shareToken)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(box, grant); err != nil {
		if errors.Is(err, gate.ErrAccessRequired) {
			return nil, ErrAccessRequired
		}
		return nil, err
	}
	return box, nil
}
