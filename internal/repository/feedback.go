package repository

import (
	"context"
	"fmt"

	"github.com/tellus/tellus/internal/model"
)

// DefaultFeedbackLimit is how many entries a box's feedback list shows.
const DefaultFeedbackLimit = 10

// CreateFeedback inserts a feedback entry.
func (r *Repository) CreateFeedback(ctx context.Context, f *model.Feedback) error {
	query := `
		INSERT INTO feedbacks (id, box_id, rating, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.pool.Exec(ctx, query, f.ID, f.BoxID, f.Rating, f.Message, f.CreatedAt); err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	return nil
}

// ListFeedback returns the most recent feedback of a box.
func (r *Repository) ListFeedback(ctx context.Context, boxID string, limit int) ([]*model.Feedback, error) {
	if limit <= 0 {
		limit = DefaultFeedbackLimit
	}

	query := `
		SELECT id, box_id, rating, message, created_at
		FROM feedbacks
		WHERE box_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, boxID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Feedback, 0, limit)
	for rows.Next() {
		var f model.Feedback
		if err := rows.Scan(&f.ID, &f.BoxID, &f.Rating, &f.Message, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}
