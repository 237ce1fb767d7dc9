package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tellus/tellus/internal/model"
)

// AnalyticsRepository reads and rebuilds the daily analytics table.
type AnalyticsRepository struct {
	repo *Repository
}

// NewAnalyticsRepository creates a new AnalyticsRepository.
func NewAnalyticsRepository(repo *Repository) *AnalyticsRepository {
	return &AnalyticsRepository{repo: repo}
}

// recomputeQuery rebuilds one (box, day) row from the source tables.
// Rows for deleted boxes are skipped rather than failing the batch.
const recomputeQuery = `
	WITH c AS (
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE status = 'received')     AS received,
		       COUNT(*) FILTER (WHERE status = 'under_review') AS under_review,
		       COUNT(*) FILTER (WHERE status = 'solved')       AS solved
		FROM complaints
		WHERE box_id = $1 AND created_at >= $3 AND created_at < $4
	),
	f AS (
		SELECT COUNT(*) AS total, AVG(rating)::float8 AS avg
		FROM feedbacks
		WHERE box_id = $1 AND created_at >= $3 AND created_at < $4
	)
	INSERT INTO analytics (
		box_id, date, total_complaints, received_count, under_review_count,
		solved_count, total_feedbacks, avg_rating, updated_at
	)
	SELECT $1, $2, c.total, c.received, c.under_review, c.solved, f.total, f.avg, NOW()
	FROM c, f
	WHERE EXISTS (SELECT 1 FROM complaint_boxes WHERE id = $1)
	ON CONFLICT (box_id, date) DO UPDATE SET
		total_complaints = EXCLUDED.total_complaints,
		received_count = EXCLUDED.received_count,
		under_review_count = EXCLUDED.under_review_count,
		solved_count = EXCLUDED.solved_count,
		total_feedbacks = EXCLUDED.total_feedbacks,
		avg_rating = EXCLUDED.avg_rating,
		updated_at = NOW()
`

// RecomputeDays rebuilds the rows for the given (box, day) pairs.
// Recomputing is idempotent, so replayed events are harmless.
func (r *AnalyticsRepository) RecomputeDays(ctx context.Context, keys []model.DayKey) error {
	if len(keys) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, k := range keys {
		day := model.TruncateDay(k.Date)
		batch.Queue(recomputeQuery, k.BoxID, day, day, day.Add(24*time.Hour))
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for _, k := range keys {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("recompute %s:%s: %w", k.BoxID, k.Date.Format(time.DateOnly), err)
		}
	}
	return nil
}

// GetDailyRows returns a box's rows with from <= date <= to, oldest first.
func (r *AnalyticsRepository) GetDailyRows(ctx context.Context, boxID string, from, to time.Time) ([]model.AnalyticsRow, error) {
	query := `
		SELECT box_id, date, total_complaints, received_count, under_review_count,
		       solved_count, total_feedbacks, avg_rating, updated_at
		FROM analytics
		WHERE box_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`

	rows, err := r.repo.pool.Query(ctx, query, boxID, model.TruncateDay(from), model.TruncateDay(to))
	if err != nil {
		return nil, fmt.Errorf("query analytics: %w", err)
	}
	defer rows.Close()

	out := make([]model.AnalyticsRow, 0)
	for rows.Next() {
		var row model.AnalyticsRow
		if err := rows.Scan(
			&row.BoxID,
			&row.Date,
			&row.TotalComplaints,
			&row.ReceivedCount,
			&row.UnderReviewCount,
			&row.SolvedCount,
			&row.TotalFeedbacks,
			&row.AvgRating,
			&row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan analytics row: %w", err)
		}
		row.Date = row.Date.UTC()
		out = append(out, row)
	}
	return out, rows.Err()
}
