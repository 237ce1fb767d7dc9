package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tellus/tellus/internal/model"
)

// EndpointLister finds endpoints subscribed to an event.
type EndpointLister interface {
	ListSubscribedEndpoints(ctx context.Context, adminID, boxID string, eventType model.EventType) ([]*model.WebhookEndpoint, error)
	CreateDelivery(ctx context.Context, delivery *model.WebhookDelivery) error
}

// Publisher creates delivery records when box events occur.
type Publisher struct {
	repo   EndpointLister
	logger *slog.Logger
}

// NewPublisher creates a new webhook publisher.
func NewPublisher(repo EndpointLister, logger *slog.Logger) *Publisher {
	return &Publisher{
		repo:   repo,
		logger: logger.With("component", "webhook.publisher"),
	}
}

// PublishEvent queues one delivery per subscribed endpoint. Deliveries are
// keyed by (endpoint, event id), so publishing the same event twice is safe.
func (p *Publisher) PublishEvent(ctx context.Context, event model.BoxEvent) error {
	endpoints, err := p.repo.ListSubscribedEndpoints(ctx, event.AdminID, event.BoxID, event.Type)
	if err != nil {
		return fmt.Errorf("list subscribed endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return nil
	}

	payloadJSON, err := json.Marshal(model.WebhookPayload{
		EventType: event.Type,
		EventID:   event.ID,
		Timestamp: event.OccurredAt,
		Data:      event.Data(),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now().UTC()
	for _, endpoint := range endpoints {
		// The query filters already; this guards against a stale row shape.
		if !endpoint.SubscribesTo(event.Type, event.BoxID) {
			continue
		}

		delivery := &model.WebhookDelivery{
			ID:          ulid.Make().String(),
			EndpointID:  endpoint.ID,
			EventID:     event.ID,
			EventType:   event.Type,
			PayloadJSON: string(payloadJSON),
			Status:      model.DeliveryStatusPending,
			MaxAttempts: DefaultMaxAttempts,
			NextRetryAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := p.repo.CreateDelivery(ctx, delivery); err != nil {
			p.logger.Warn("failed to create delivery",
				"endpoint_id", endpoint.ID,
				"event_id", event.ID,
				"error", err,
			)
			continue
		}

		p.logger.Debug("webhook delivery queued",
			"delivery_id", delivery.ID,
			"endpoint_id", endpoint.ID,
			"event_type", event.Type,
		)
	}

	return nil
}
