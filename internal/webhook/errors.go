package webhook

import "errors"

// Sentinel errors for webhook operations.
var (
	ErrEndpointNotFound = errors.New("webhook endpoint not found")
	ErrNoEventTypes     = errors.New("at least one event type is required")
	ErrUnknownEventType = errors.New("unknown event type")
)
