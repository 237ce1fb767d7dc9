package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tellus/tellus/internal/model"
	"github.com/tellus/tellus/internal/repository"
	"github.com/tellus/tellus/internal/webhook"
)

// DefaultDeliveryListLimit bounds a delivery history listing.
const DefaultDeliveryListLimit = 50

// WebhookStore persists webhook endpoints and reads deliveries.
type WebhookStore interface {
	CreateEndpoint(ctx context.Context, endpoint *model.WebhookEndpoint) error
	GetOwnedEndpoint(ctx context.Context, id, adminID string) (*model.WebhookEndpoint, error)
	ListEndpointsByAdmin(ctx context.Context, adminID string) ([]*model.WebhookEndpoint, error)
	DeleteEndpoint(ctx context.Context, id, adminID string) error
	ListDeliveries(ctx context.Context, endpointID string, limit int) ([]*model.WebhookDelivery, error)
}

// TargetValidator checks outbound webhook URLs.
type TargetValidator interface {
	ValidateTargetURL(ctx context.Context, targetURL string) error
}

// WebhookService manages admin webhook endpoints.
type WebhookService struct {
	repo      WebhookStore
	boxes     BoxStore
	validator TargetValidator
	logger    *slog.Logger
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(repo WebhookStore, boxes BoxStore, validator TargetValidator, logger *slog.Logger) *WebhookService {
	return &WebhookService{
		repo:      repo,
		boxes:     boxes,
		validator: validator,
		logger:    logger.With("component", "service.webhook"),
	}
}

// CreateWebhookInput defines input for registering an endpoint.
type CreateWebhookInput struct {
	AdminID    string
	BoxID      string // empty subscribes to every box of the admin
	Name       string
	TargetURL  string
	EventTypes []string
}

// CreatedWebhook carries the signing secret, which is shown only once.
type CreatedWebhook struct {
	Endpoint *model.WebhookEndpoint `json:"endpoint"`
	Secret   string                 `json:"secret"`
}

// Create registers an endpoint and returns its signing secret.
func (s *WebhookService) Create(ctx context.Context, input CreateWebhookInput) (*CreatedWebhook, error) {
	eventTypes, err := parseEventTypes(input.EventTypes)
	if err != nil {
		return nil, err
	}

	targetURL := strings.TrimSpace(input.TargetURL)
	if err := s.validator.ValidateTargetURL(ctx, targetURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTargetURL, err)
	}

	var boxID *string
	if input.BoxID != "" {
		if _, err := s.boxes.GetOwnedBox(ctx, input.BoxID, input.AdminID); err != nil {
			if errors.Is(err, repository.ErrBoxNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		id := input.BoxID
		boxID = &id
	}

	secret, err := webhook.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate webhook secret: %w", err)
	}

	now := time.Now().UTC()
	endpoint := &model.WebhookEndpoint{
		ID:         ulid.Make().String(),
		AdminID:    input.AdminID,
		BoxID:      boxID,
		Name:       strings.TrimSpace(input.Name),
		TargetURL:  targetURL,
		SecretHash: webhook.HashSecret(secret),
		Enabled:    true,
		EventTypes: eventTypes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateEndpoint(ctx, endpoint); err != nil {
		return nil, err
	}

	s.logger.Info("webhook endpoint created",
		"endpoint_id", endpoint.ID,
		"host", webhook.ExtractHost(targetURL),
	)
	return &CreatedWebhook{Endpoint: endpoint, Secret: secret}, nil
}

// List returns the admin's endpoints.
func (s *WebhookService) List(ctx context.Context, adminID string) ([]*model.WebhookEndpoint, error) {
	return s.repo.ListEndpointsByAdmin(ctx, adminID)
}

// Delete removes an endpoint with its delivery history.
func (s *WebhookService) Delete(ctx context.Context, id, adminID string) error {
	if err := s.repo.DeleteEndpoint(ctx, id, adminID); err != nil {
		return mapEndpointErr(err)
	}
	return nil
}

// Deliveries returns the recent deliveries of an owned endpoint.
func (s *WebhookService) Deliveries(ctx context.Context, id, adminID string, limit int) ([]*model.WebhookDelivery, error) {
	if _, err := s.repo.GetOwnedEndpoint(ctx, id, adminID); err != nil {
		return nil, mapEndpointErr(err)
	}
	if limit <= 0 || limit > DefaultDeliveryListLimit {
		limit = DefaultDeliveryListLimit
	}
	return s.repo.ListDeliveries(ctx, id, limit)
}

func parseEventTypes(raw []string) ([]model.EventType, error) {
	if len(raw) == 0 {
		return nil, ErrInvalidEventTypes
	}
	seen := make(map[model.EventType]bool, len(raw))
	out := make([]model.EventType, 0, len(raw))
	for _, r := range raw {
		et := model.EventType(strings.TrimSpace(r))
		if !model.IsValidEventType(et) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEventTypes, r)
		}
		if !seen[et] {
			seen[et] = true
			out = append(out, et)
		}
	}
	return out, nil
}

func mapEndpointErr(err error) error {
	if errors.Is(err, webhook.ErrEndpointNotFound) {
		return ErrNotFound
	}
	return err
}
