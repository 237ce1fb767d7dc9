package dto

import (
	"time"

	"github.com/tellus/tellus/internal/model"
)

// SubmitComplaintRequest is the JSON form of a submission. Multipart
// submissions use the same field names.
type SubmitComplaintRequest struct {
	Title          string `json:"title"`
	Message        string `json:"message"`
	Category       string `json:"category,omitempty"`
	CustomCategory string `json:"custom_category,omitempty"`
}

// SubmittedComplaintResponse is returned once a complaint is stored.
type SubmittedComplaintResponse struct {
	TrackingToken string       `json:"tracking_token"`
	Status        model.Status `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
}

// TrackedComplaint is a complaint as a submitter sees it. Internal ids
// are omitted.
type TrackedComplaint struct {
	Token      string            `json:"token"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	Status     model.Status      `json:"status"`
	Category   string            `json:"category,omitempty"`
	Attachment *model.Attachment `json:"attachment,omitempty"`
	AdminReply string            `json:"admin_reply,omitempty"`
	RepliedAt  *time.Time        `json:"replied_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// ToTrackedComplaint converts a Complaint model for public responses.
func ToTrackedComplaint(c *model.Complaint) TrackedComplaint {
	return TrackedComplaint{
		Token:      c.Token,
		Title:      c.Title,
		Message:    c.Message,
		Status:     c.Status,
		Category:   c.Category,
		Attachment: c.Attachment,
		AdminReply: c.AdminReply,
		RepliedAt:  c.RepliedAt,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// ToTrackedList converts complaints for public list responses.
func ToTrackedList(cs []*model.Complaint) List[TrackedComplaint] {
	out := make([]TrackedComplaint, 0, len(cs))
	for _, c := range cs {
		out = append(out, ToTrackedComplaint(c))
	}
	return NewList(out)
}

// StatusRequest moves a complaint to another status.
type StatusRequest struct {
	Status string `json:"status"`
}

// ReplyRequest sets the admin reply of a complaint.
type ReplyRequest struct {
	Reply string `json:"reply"`
}

// FeedbackRequest is an anonymous rating for a box.
type FeedbackRequest struct {
	Rating  int    `json:"rating"`
	Message string `json:"message,omitempty"`
}
