package model

import "time"

// BoxEvent is published whenever box content changes. Events drive the
// daily analytics rows and outbound webhooks.
type BoxEvent struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	BoxID          string    `json:"box_id"`
	AdminID        string    `json:"admin_id"`
	ComplaintID    string    `json:"complaint_id,omitempty"`
	ComplaintToken string    `json:"complaint_token,omitempty"`
	Status         Status    `json:"status,omitempty"`
	Rating         int       `json:"rating,omitempty"`
	// SubjectCreatedAt is when the complaint or feedback was created; it
	// selects the analytics day the event affects.
	SubjectCreatedAt time.Time `json:"subject_created_at"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// DayKey returns the analytics row this event touches.
func (e *BoxEvent) DayKey() DayKey {
	return DayKey{BoxID: e.BoxID, Date: TruncateDay(e.SubjectCreatedAt)}
}

// Data returns the event fields exposed to webhook receivers.
func (e *BoxEvent) Data() map[string]any {
	data := map[string]any{"box_id": e.BoxID}
	if e.ComplaintToken != "" {
		data["complaint_token"] = e.ComplaintToken
	}
	if e.ComplaintID != "" {
		data["complaint_id"] = e.ComplaintID
	}
	if e.Status != "" {
		data["status"] = string(e.Status)
	}
	if e.Rating != 0 {
		data["rating"] = e.Rating
	}
	return data
}

// NewComplaintEvent builds an event about c in box.
func NewComplaintEvent(et EventType, box *Box, c *Complaint) BoxEvent {
	return BoxEvent{
		Type:             et,
		BoxID:            box.ID,
		AdminID:          box.AdminID,
		ComplaintID:      c.ID,
		ComplaintToken:   c.Token,
		Status:           c.Status,
		SubjectCreatedAt: c.CreatedAt,
		OccurredAt:       time.Now().UTC(),
	}
}

// NewFeedbackEvent builds a feedback.submitted event.
func NewFeedbackEvent(box *Box, f *Feedback) BoxEvent {
	return BoxEvent{
		Type:             EventFeedbackSubmitted,
		BoxID:            box.ID,
		AdminID:          box.AdminID,
		Rating:           f.Rating,
		SubjectCreatedAt: f.CreatedAt,
		OccurredAt:       time.Now().UTC(),
	}
}
