package model

import "time"

const (
	MinRating = 1
	MaxRating = 5
)

// Feedback is an anonymous rating left on a box. Immutable once created.
type Feedback struct {
	ID        string    `json:"id"`
	BoxID     string    `json:"box_id"`
	Rating    int       `json:"rating"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidRating reports whether r is within the accepted range.
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}
