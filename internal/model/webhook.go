package model

import (
	"slices"
	"time"
)

// EventType names a box event. The same names are used on the analytics
// stream and in webhook deliveries.
type EventType string

const (
	EventComplaintSubmitted     EventType = "complaint.submitted"
	EventComplaintStatusChanged EventType = "complaint.status_changed"
	EventComplaintReplied       EventType = "complaint.replied"
	EventFeedbackSubmitted      EventType = "feedback.submitted"
)

// ValidEventTypes contains all valid event types.
var ValidEventTypes = []EventType{
	EventComplaintSubmitted,
	EventComplaintStatusChanged,
	EventComplaintReplied,
	EventFeedbackSubmitted,
}

// IsValidEventType checks if an event type is valid.
func IsValidEventType(et EventType) bool {
	return slices.Contains(ValidEventTypes, et)
}

// DeliveryStatus represents webhook delivery state.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSuccess   DeliveryStatus = "success"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusExhausted DeliveryStatus = "exhausted"
)

// WebhookEndpoint is an admin-registered receiver of box events.
// A nil BoxID subscribes to every box the admin owns.
type WebhookEndpoint struct {
	ID         string      `json:"id"`
	AdminID    string      `json:"admin_id"`
	BoxID      *string     `json:"box_id,omitempty"`
	Name       string      `json:"name,omitempty"`
	TargetURL  string      `json:"target_url"`
	SecretHash string      `json:"-"`
	Enabled    bool        `json:"enabled"`
	EventTypes []EventType `json:"event_types"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// SubscribesTo reports whether the endpoint wants the event for boxID.
func (e *WebhookEndpoint) SubscribesTo(et EventType, boxID string) bool {
	if !e.Enabled {
		return false
	}
	if e.BoxID != nil && *e.BoxID != boxID {
		return false
	}
	return slices.Contains(e.EventTypes, et)
}

// WebhookDelivery represents a delivery attempt record.
type WebhookDelivery struct {
	ID             string         `json:"id"`
	EndpointID     string         `json:"endpoint_id"`
	EventID        string         `json:"event_id"`
	EventType      EventType      `json:"event_type"`
	PayloadJSON    string         `json:"-"`
	Status         DeliveryStatus `json:"status"`
	AttemptCount   int            `json:"attempt_count"`
	MaxAttempts    int            `json:"max_attempts"`
	NextRetryAt    time.Time      `json:"next_retry_at"`
	LastAttemptAt  *time.Time     `json:"last_attempt_at,omitempty"`
	LastStatusCode *int           `json:"last_status_code,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// IsTerminal returns true if delivery is in a terminal state.
func (d *WebhookDelivery) IsTerminal() bool {
	return d.Status == DeliveryStatusSuccess || d.Status == DeliveryStatusExhausted
}

// WebhookPayload is the JSON body posted to endpoints.
type WebhookPayload struct {
	EventType EventType      `json:"event_type"`
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}
