package dto

import (
	"time"

	"github.com/tellus/tellus/internal/model"
)

// CreateBoxRequest represents the request body for creating a box.
type CreateBoxRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Secret      string `json:"secret,omitempty"`
	Category    string `json:"category,omitempty"`
}

// UpdateBoxRequest represents the request body for editing a box.
// An empty secret clears the gate.
type UpdateBoxRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Secret      *string `json:"secret,omitempty"`
	Category    *string `json:"category,omitempty"`
}

// BoxResponse is a box as its owner sees it.
type BoxResponse struct {
	ID             string          `json:"id"`
	Token          string          `json:"token"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Category       string          `json:"category,omitempty"`
	RequiresSecret bool            `json:"requires_secret"`
	Stats          *model.BoxStats `json:"stats,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ToBoxResponse converts a Box model to BoxResponse DTO.
func ToBoxResponse(box *model.Box) BoxResponse {
	return BoxResponse{
		ID:             box.ID,
		Token:          box.Token,
		Title:          box.Title,
		Description:    box.Description,
		Category:       box.Category,
		RequiresSecret: box.RequiresSecret(),
		CreatedAt:      box.CreatedAt,
		UpdatedAt:      box.UpdatedAt,
	}
}

// ToBoxListResponse converts dashboard rows, keeping their aggregates.
func ToBoxListResponse(boxes []*model.BoxWithStats) List[BoxResponse] {
	out := make([]BoxResponse, 0, len(boxes))
	for _, b := range boxes {
		resp := ToBoxResponse(&b.Box)
		stats := b.Stats
		resp.Stats = &stats
		out = append(out, resp)
	}
	return NewList(out)
}

// UnlockRequest carries a box secret.
type UnlockRequest struct {
	Secret string `json:"secret"`
}
