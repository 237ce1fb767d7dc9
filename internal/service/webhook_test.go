package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellus/tellus/internal/model"
	"github.com/tellus/tellus/internal/webhook"
)

type memWebhooks struct {
	endpoints  map[string]*model.WebhookEndpoint
	deliveries map[string][]*model.WebhookDelivery
}

func newMemWebhooks() *memWebhooks {
	return &memWebhooks{
		endpoints:  map[string]*model.WebhookEndpoint{},
		deliveries: map[string][]*model.WebhookDelivery{},
	}
}

func (m *memWebhooks) CreateEndpoint(_ context.Context, e *model.WebhookEndpoint) error {
	m.endpoints[e.ID] = e
	return nil
}

func (m *memWebhooks) GetOwnedEndpoint(_ context.Context, id, adminID string) (*model.WebhookEndpoint, error) {
	e, ok := m.endpoints[id]
	if !ok || e.AdminID != adminID {
		return nil, webhook.ErrEndpointNotFound
	}
	return e, nil
}

func (m *memWebhooks) ListEndpointsByAdmin(_ context.Context, adminID string) ([]*model.WebhookEndpoint, error) {
	var out []*model.WebhookEndpoint
	for _, e := range m.endpoints {
		if e.AdminID == adminID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memWebhooks) DeleteEndpoint(ctx context.Context, id, adminID string) error {
	if _, err := m.GetOwnedEndpoint(ctx, id, adminID); err != nil {
		return err
	}
	delete(m.endpoints, id)
	return nil
}

func (m *memWebhooks) ListDeliveries(_ context.Context, endpointID string, limit int) ([]*model.WebhookDelivery, error) {
	d := m.deliveries[endpointID]
	if len(d) > limit {
		d = d[:limit]
	}
	return d, nil
}

type stubValidator struct{ err error }

func (v stubValidator) ValidateTargetURL(context.Context, string) error { return v.err }

func TestWebhookService_Create(t *testing.T) {
	store := newMemStore()
	store.boxes["box-1"] = &model.Box{ID: "box-1", AdminID: "admin-1"}
	hooks := newMemWebhooks()
	svc := NewWebhookService(hooks, store, stubValidator{}, testLogger())
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateWebhookInput{
		AdminID:    "admin-1",
		BoxID:      "box-1",
		TargetURL:  " https://hooks.example.com/tellus ",
		EventTypes: []string{"complaint.submitted", "complaint.submitted", "feedback.submitted"},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(created.Secret, "whsec_"))
	assert.Equal(t, webhook.HashSecret(created.Secret), created.Endpoint.SecretHash)
	assert.Equal(t, "https://hooks.example.com/tellus", created.Endpoint.TargetURL)
	assert.Equal(t, []model.EventType{model.EventComplaintSubmitted, model.EventFeedbackSubmitted}, created.Endpoint.EventTypes)
	require.NotNil(t, created.Endpoint.BoxID)
	assert.True(t, created.Endpoint.Enabled)

	list, err := svc.List(ctx, "admin-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestWebhookService_Create_Rejects(t *testing.T) {
	store := newMemStore()
	store.boxes["box-1"] = &model.Box{ID: "box-1", AdminID: "admin-1"}
	ctx := context.Background()
	valid := CreateWebhookInput{AdminID: "admin-1", TargetURL: "https://x.example", EventTypes: []string{"complaint.replied"}}

	svc := NewWebhookService(newMemWebhooks(), store, stubValidator{}, testLogger())

	in := valid
	in.EventTypes = nil
	_, err := svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidEventTypes)

	in = valid
	in.EventTypes = []string{"box.deleted"}
	_, err = svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidEventTypes)

	in = valid
	in.BoxID = "box-1"
	in.AdminID = "admin-2"
	_, err = svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrNotFound)

	blocked := NewWebhookService(newMemWebhooks(), store, stubValidator{err: errors.New("private address")}, testLogger())
	_, err = blocked.Create(ctx, valid)
	assert.ErrorIs(t, err, ErrInvalidTargetURL)
}

func TestWebhookService_DeleteAndDeliveries(t *testing.T) {
	hooks := newMemWebhooks()
	hooks.endpoints["wh-1"] = &model.WebhookEndpoint{ID: "wh-1", AdminID: "admin-1"}
	for range 60 {
		hooks.deliveries["wh-1"] = append(hooks.deliveries["wh-1"], &model.WebhookDelivery{})
	}
	svc := NewWebhookService(hooks, newMemStore(), stubValidator{}, testLogger())
	ctx := context.Background()

	got, err := svc.Deliveries(ctx, "wh-1", "admin-1", 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultDeliveryListLimit)

	_, err = svc.Deliveries(ctx, "wh-1", "admin-2", 10)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, "wh-1", "admin-2"), ErrNotFound)
	require.NoError(t, svc.Delete(ctx, "wh-1", "admin-1"))
	assert.Empty(t, hooks.endpoints)
}
