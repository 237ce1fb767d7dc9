package dto

// CreateWebhookRequest registers a webhook endpoint. An empty box_id
// subscribes to every box of the admin.
type CreateWebhookRequest struct {
	BoxID      string   `json:"box_id,omitempty"`
	Name       string   `json:"name,omitempty"`
	TargetURL  string   `json:"target_url"`
	EventTypes []string `json:"event_types"`
}
