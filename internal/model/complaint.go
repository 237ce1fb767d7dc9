package model

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a complaint.
// Any status may be set from any other; solved complaints can be reopened.
type Status string

const (
	StatusReceived    Status = "received"
	StatusUnderReview Status = "under_review"
	StatusSolved      Status = "solved"
)

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusReceived, StatusUnderReview, StatusSolved}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusReceived, StatusUnderReview, StatusSolved:
		return true
	}
	return false
}

// ParseStatus converts a string to a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", v)
	}
	return s, nil
}

// Attachment references an uploaded file.
type Attachment struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Key         string `json:"-"`
}

// Complaint is an anonymous submission to a box.
type Complaint struct {
	ID         string      `json:"id"`
	BoxID      string      `json:"box_id"`
	Title      string      `json:"title"`
	Message    string      `json:"message"`
	Status     Status      `json:"status"`
	Token      string      `json:"token"`
	Category   string      `json:"category,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	AdminReply string      `json:"admin_reply,omitempty"`
	RepliedAt  *time.Time  `json:"replied_at,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// HasReply reports whether the admin has replied.
func (c *Complaint) HasReply() bool {
	return c.AdminReply != ""
}
