// Package model defines domain entities for the application.
package model

import (
	"strconv"
	"time"
)

// Box is a complaint box owned by one admin and addressed publicly by Token.
type Box struct {
	ID          string    `json:"id"`
	AdminID     string    `json:"admin_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	SecretHash  string    `json:"-"` // argon2id PHC string, never exposed
	Token       string    `json:"token"`
	Category    string    `json:"category,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RequiresSecret reports whether visitors must pass the access gate.
func (b *Box) RequiresSecret() bool {
	return b.SecretHash != ""
}

// BoxStats holds the dashboard aggregates for one box.
type BoxStats struct {
	ComplaintCount int64    `json:"complaint_count"`
	FeedbackCount  int64    `json:"feedback_count"`
	AvgRating      *float64 `json:"avg_rating,omitempty"`
}

// BoxWithStats pairs a box with its dashboard aggregates.
type BoxWithStats struct {
	Box
	Stats BoxStats `json:"stats"`
}

// CachedBox represents box data stored in a Redis hash.
type CachedBox struct {
	ID          string `redis:"id"`
	AdminID     string `redis:"admin_id"`
	Title       string `redis:"title"`
	Description string `redis:"description"`
	SecretHash  string `redis:"secret_hash"`
	Category    string `redis:"category"`
	CreatedAt   string `redis:"created_at"` // Unix timestamp
	UpdatedAt   string `redis:"updated_at"` // Unix timestamp
}

// ToBox converts CachedBox to the Box domain model.
func (c *CachedBox) ToBox(token string) *Box {
	box := &Box{
		ID:          c.ID,
		AdminID:     c.AdminID,
		Title:       c.Title,
		Description: c.Description,
		SecretHash:  c.SecretHash,
		Token:       token,
		Category:    c.Category,
	}
	if ts, err := strconv.ParseInt(c.CreatedAt, 10, 64); err == nil {
		box.CreatedAt = time.Unix(ts, 0).UTC()
	}
	if ts, err := strconv.ParseInt(c.UpdatedAt, 10, 64); err == nil {
		box.UpdatedAt = time.Unix(ts, 0).UTC()
	}
	return box
}

// ToCachedBox converts Box to its cache representation.
func (b *Box) ToCachedBox() *CachedBox {
	return &CachedBox{
		ID:          b.ID,
		AdminID:     b.AdminID,
		Title:       b.Title,
		Description: b.Description,
		SecretHash:  b.SecretHash,
		Category:    b.Category,
		CreatedAt:   strconv.FormatInt(b.CreatedAt.Unix(), 10),
		UpdatedAt:   strconv.FormatInt(b.UpdatedAt.Unix(), 10),
	}
}
