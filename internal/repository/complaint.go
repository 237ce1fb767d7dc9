package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tellus/tellus/internal/model"
)

// ErrComplaintNotFound is returned when no complaint matches.
var ErrComplaintNotFound = errors.New("complaint not found")

const complaintColumns = `c.id, c.box_id, c.title, c.message, c.status, c.token, c.category,
	c.attachment_url, c.attachment_name, c.attachment_type, c.attachment_key,
	c.admin_reply, c.replied_at, c.created_at, c.updated_at`

// CreateComplaint inserts a new complaint.
func (r *Repository) CreateComplaint(ctx context.Context, c *model.Complaint) error {
	query := `
		INSERT INTO complaints (
			id, box_id, title, message, status, token, category,
			attachment_url, attachment_name, attachment_type, attachment_key,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	var url, name, ctype, key *string
	if a := c.Attachment; a != nil {
		url, name, ctype, key = &a.URL, &a.Name, &a.ContentType, nullableString(a.Key)
	}

	_, err := r.pool.Exec(ctx, query,
		c.ID,
		c.BoxID,
		c.Title,
		c.Message,
		string(c.Status),
		c.Token,
		c.Category,
		url,
		name,
		ctype,
		key,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTokenExists
		}
		return fmt.Errorf("failed to create complaint: %w", err)
	}
	return nil
}

// GetComplaintByToken retrieves a complaint by its tracking token.
func (r *Repository) GetComplaintByToken(ctx context.Context, token string) (*model.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints c WHERE c.token = $1`

	c, err := scanComplaint(r.pool.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrComplaintNotFound
		}
		return nil, fmt.Errorf("failed to get complaint by token: %w", err)
	}
	return c, nil
}

// GetOwnedComplaint retrieves a complaint whose box belongs to adminID.
func (r *Repository) GetOwnedComplaint(ctx context.Context, id, adminID string) (*model.Complaint, error) {
	query := `
		SELECT ` + complaintColumns + `
		FROM complaints c
		JOIN complaint_boxes b ON b.id = c.box_id
		WHERE c.id = $1 AND b.admin_id = $2
	`

	c, err := scanComplaint(r.pool.QueryRow(ctx, query, id, adminID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrComplaintNotFound
		}
		return nil, fmt.Errorf("failed to get complaint: %w", err)
	}
	return c, nil
}

// ListComplaintsByBox returns every complaint in a box, newest first.
// Filtering and re-sorting happen in the service.
func (r *Repository) ListComplaintsByBox(ctx context.Context, boxID string) ([]*model.Complaint, error) {
	query := `
		SELECT ` + complaintColumns + `
		FROM complaints c
		WHERE c.box_id = $1
		ORDER BY c.created_at DESC, c.id DESC
	`
	return r.queryComplaints(ctx, query, boxID)
}

// ListComplaintsByTokens returns the complaints of boxID whose tracking
// token is in tokens, newest first. Tokens from other boxes are ignored.
func (r *Repository) ListComplaintsByTokens(ctx context.Context, boxID string, tokens []string) ([]*model.Complaint, error) {
	if len(tokens) == 0 {
		return []*model.Complaint{}, nil
	}

	query := `
		SELECT ` + complaintColumns + `
		FROM complaints c
		WHERE c.box_id = $1 AND c.token = ANY($2)
		ORDER BY c.created_at DESC, c.id DESC
	`
	return r.queryComplaints(ctx, query, boxID, tokens)
}

// UpdateComplaintStatus sets the status of a complaint and returns it.
func (r *Repository) UpdateComplaintStatus(ctx context.Context, id string, status model.Status) (*model.Complaint, error) {
	query := `
		UPDATE complaints c SET status = $2, updated_at = $3
		WHERE c.id = $1
		RETURNING ` + complaintColumns

	c, err := scanComplaint(r.pool.QueryRow(ctx, query, id, string(status), time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrComplaintNotFound
		}
		return nil, fmt.Errorf("failed to update complaint status: %w", err)
	}
	return c, nil
}

// SetComplaintReply stores the admin reply. Status is left unchanged.
func (r *Repository) SetComplaintReply(ctx context.Context, id, reply string) (*model.Complaint, error) {
	now := time.Now().UTC()
	query := `
		UPDATE complaints c SET admin_reply = $2, replied_at = $3, updated_at = $3
		WHERE c.id = $1
		RETURNING ` + complaintColumns

	c, err := scanComplaint(r.pool.QueryRow(ctx, query, id, reply, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrComplaintNotFound
		}
		return nil, fmt.Errorf("failed to set complaint reply: %w", err)
	}
	return c, nil
}

// DeleteComplaint removes a complaint and returns the deleted row.
func (r *Repository) DeleteComplaint(ctx context.Context, id string) (*model.Complaint, error) {
	query := `DELETE FROM complaints c WHERE c.id = $1 RETURNING ` + complaintColumns

	c, err := scanComplaint(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrComplaintNotFound
		}
		return nil, fmt.Errorf("failed to delete complaint: %w", err)
	}
	return c, nil
}

// ComplaintTokenExists checks if a tracking token is taken.
func (r *Repository) ComplaintTokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM complaints WHERE token = $1)`, token,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check complaint token existence: %w", err)
	}
	return exists, nil
}

func (r *Repository) queryComplaints(ctx context.Context, query string, args ...any) ([]*model.Complaint, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list complaints: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Complaint, 0)
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan complaint: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating complaints: %w", err)
	}
	return out, nil
}

func scanComplaint(row pgx.Row) (*model.Complaint, error) {
	var (
		c                     model.Complaint
		status                string
		url, name, ctype, key *string
		reply                 *string
	)
	err := row.Scan(
		&c.ID,
		&c.BoxID,
		&c.Title,
		&c.Message,
		&status,
		&c.Token,
		&c.Category,
		&url,
		&name,
		&ctype,
		&key,
		&reply,
		&c.RepliedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = model.Status(status)
	if url != nil {
		c.Attachment = &model.Attachment{URL: *url}
		if name != nil {
			c.Attachment.Name = *name
		}
		if ctype != nil {
			c.Attachment.ContentType = *ctype
		}
		if key != nil {
			c.Attachment.Key = *key
		}
	}
	if reply != nil {
		c.AdminReply = *reply
	}
	return &c, nil
}
