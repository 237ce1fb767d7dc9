package model

import "time"

// AnalyticsRow holds pre-aggregated figures for one box on one UTC day.
// Status counts describe the complaints created that day.
type AnalyticsRow struct {
	BoxID            string    `json:"box_id"`
	Date             time.Time `json:"date"`
	TotalComplaints  int64     `json:"total_complaints"`
	ReceivedCount    int64     `json:"received_count"`
	UnderReviewCount int64     `json:"under_review_count"`
	SolvedCount      int64     `json:"solved_count"`
	TotalFeedbacks   int64     `json:"total_feedbacks"`
	AvgRating        *float64  `json:"avg_rating,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DayKey identifies a daily analytics row.
type DayKey struct {
	BoxID string
	Date  time.Time
}

// TruncateDay returns t truncated to its UTC day.
func TruncateDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// StatusCounts is a status distribution.
type StatusCounts struct {
	Received    int64 `json:"received"`
	UnderReview int64 `json:"under_review"`
	Solved      int64 `json:"solved"`
}

// AnalyticsSummary aggregates rows over a time range.
type AnalyticsSummary struct {
	BoxID           string         `json:"box_id"`
	Range           string         `json:"range"`
	From            string         `json:"from"` // ISO date
	To              string         `json:"to"`   // ISO date
	TotalComplaints int64          `json:"total_complaints"`
	TotalFeedbacks  int64          `json:"total_feedbacks"`
	AvgRating       *float64       `json:"avg_rating,omitempty"`
	Statuses        StatusCounts   `json:"statuses"`
	Daily           []AnalyticsRow `json:"daily"`
	GeneratedAt     time.Time      `json:"generated_at"`
}
