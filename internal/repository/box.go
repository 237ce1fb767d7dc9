package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tellus/tellus/internal/model"
)

// Common errors for box repository operations.
var (
	ErrBoxNotFound = errors.New("box not found")
	ErrTokenExists = errors.New("token already exists")
)

const boxColumns = `id, admin_id, title, description, secret_hash, token, category, created_at, updated_at`

// CreateBox inserts a new complaint box.
func (r *Repository) CreateBox(ctx context.Context, box *model.Box) error {
	query := `
		INSERT INTO complaint_boxes (` + boxColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		box.ID,
		box.AdminID,
		box.Title,
		box.Description,
		box.SecretHash,
		box.Token,
		box.Category,
		box.CreatedAt,
		box.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTokenExists
		}
		return fmt.Errorf("failed to create box: %w", err)
	}
	return nil
}

// GetBoxByToken retrieves a box by its public share token.
// This is the hot path for submitters.
func (r *Repository) GetBoxByToken(ctx context.Context, token string) (*model.Box, error) {
	query := `SELECT ` + boxColumns + ` FROM complaint_boxes WHERE token = $1`

	box, err := scanBox(r.pool.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBoxNotFound
		}
		return nil, fmt.Errorf("failed to get box by token: %w", err)
	}
	return box, nil
}

// GetOwnedBox retrieves a box by id if adminID owns it. Boxes owned by
// someone else are reported as ErrBoxNotFound.
func (r *Repository) GetOwnedBox(ctx context.Context, id, adminID string) (*model.Box, error) {
	query := `SELECT ` + boxColumns + ` FROM complaint_boxes WHERE id = $1 AND admin_id = $2`

	box, err := scanBox(r.pool.QueryRow(ctx, query, id, adminID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBoxNotFound
		}
		return nil, fmt.Errorf("failed to get box: %w", err)
	}
	return box, nil
}

// ListBoxesWithStats lists an admin's boxes, newest first, together with
// complaint count, feedback count and average rating. The aggregates come
// from one grouped query per table rather than one query per box.
func (r *Repository) ListBoxesWithStats(ctx context.Context, adminID string) ([]*model.BoxWithStats, error) {
	query := `
		WITH owned AS (
			SELECT ` + boxColumns + ` FROM complaint_boxes WHERE admin_id = $1
		),
		c AS (
			SELECT box_id, COUNT(*) AS n
			FROM complaints
			WHERE box_id IN (SELECT id FROM owned)
			GROUP BY box_id
		),
		f AS (
			SELECT box_id, COUNT(*) AS n, AVG(rating)::float8 AS avg
			FROM feedbacks
			WHERE box_id IN (SELECT id FROM owned)
			GROUP BY box_id
		)
		SELECT o.id, o.admin_id, o.title, o.description, o.secret_hash, o.token,
		       o.category, o.created_at, o.updated_at,
		       COALESCE(c.n, 0), COALESCE(f.n, 0), f.avg
		FROM owned o
		LEFT JOIN c ON c.box_id = o.id
		LEFT JOIN f ON f.box_id = o.id
		ORDER BY o.created_at DESC, o.id DESC
	`

	rows, err := r.pool.Query(ctx, query, adminID)
	if err != nil {
		return nil, fmt.Errorf("failed to list boxes: %w", err)
	}
	defer rows.Close()

	out := make([]*model.BoxWithStats, 0)
	for rows.Next() {
		var b model.BoxWithStats
		if err := rows.Scan(
			&b.ID,
			&b.AdminID,
			&b.Title,
			&b.Description,
			&b.SecretHash,
			&b.Token,
			&b.Category,
			&b.CreatedAt,
			&b.UpdatedAt,
			&b.Stats.ComplaintCount,
			&b.Stats.FeedbackCount,
			&b.Stats.AvgRating,
		); err != nil {
			return nil, fmt.Errorf("failed to scan box: %w", err)
		}
		out = append(out, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating boxes: %w", err)
	}
	return out, nil
}

// UpdateBox writes the mutable fields of an owned box.
func (r *Repository) UpdateBox(ctx context.Context, box *model.Box) error {
	box.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE complaint_boxes
		SET title = $3, description = $4, secret_hash = $5, category = $6, updated_at = $7
		WHERE id = $1 AND admin_id = $2
	`
	result, err := r.pool.Exec(ctx, query,
		box.ID,
		box.AdminID,
		box.Title,
		box.Description,
		box.SecretHash,
		box.Category,
		box.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update box: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrBoxNotFound
	}
	return nil
}

// DeleteBox removes an owned box; complaints, feedback and analytics rows
// cascade. It returns the attachment keys that were referenced.
func (r *Repository) DeleteBox(ctx context.Context, id, adminID string) ([]string, error) {
	var keys []string

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		keys, err = collectStrings(ctx, tx, `
			SELECT attachment_key FROM complaints
			WHERE box_id = $1 AND attachment_key IS NOT NULL`, id)
		if err != nil {
			return fmt.Errorf("collect attachment keys: %w", err)
		}

		result, err := tx.Exec(ctx,
			`DELETE FROM complaint_boxes WHERE id = $1 AND admin_id = $2`, id, adminID)
		if err != nil {
			return fmt.Errorf("failed to delete box: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrBoxNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// BoxTokenExists checks if a share token is taken.
func (r *Repository) BoxTokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM complaint_boxes WHERE token = $1)`, token,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check box token existence: %w", err)
	}
	return exists, nil
}

func scanBox(row pgx.Row) (*model.Box, error) {
	var b model.Box
	err := row.Scan(
		&b.ID,
		&b.AdminID,
		&b.Title,
		&b.Description,
		&b.SecretHash,
		&b.Token,
		&b.Category,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return &b, err
}
