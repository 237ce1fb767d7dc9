package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tellus/tellus/internal/model"
)

// Common errors for profile repository operations.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrEmailExists     = errors.New("email already exists")
)

const profileColumns = `id, email, username, password_hash, created_at, updated_at`

// CreateProfile inserts a new admin profile. The email is stored lower-cased.
func (r *Repository) CreateProfile(ctx context.Context, p *model.Profile) error {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))

	query := `
		INSERT INTO profiles (id, email, username, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		p.ID,
		p.Email,
		p.Username,
		p.PasswordHash,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetProfileByID retrieves a profile by id.
func (r *Repository) GetProfileByID(ctx context.Context, id string) (*model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	p, err := scanProfile(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile by ID: %w", err)
	}
	return p, nil
}

// GetProfileByEmail retrieves a profile by email, case-insensitively.
func (r *Repository) GetProfileByEmail(ctx context.Context, email string) (*model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE LOWER(email) = LOWER($1)`

	p, err := scanProfile(r.pool.QueryRow(ctx, query, strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile by email: %w", err)
	}
	return p, nil
}

// UpdateUsername changes a profile's display name.
func (r *Repository) UpdateUsername(ctx context.Context, id, username string) (*model.Profile, error) {
	query := `
		UPDATE profiles SET username = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + profileColumns

	p, err := scanProfile(r.pool.QueryRow(ctx, query, id, username, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to update username: %w", err)
	}
	return p, nil
}

// UpdatePasswordHash replaces a profile's password hash.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE profiles SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, hash, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// AccountDeletion lists what a deleted account left outside the database.
type AccountDeletion struct {
	BoxTokens      []string
	AttachmentKeys []string
}

// DeleteAccount removes a profile and everything it owns in one
// transaction. Boxes, complaints, feedback, analytics and webhooks go by
// foreign-key cascade; the returned keys let the caller clean up caches
// and attachment objects.
func (r *Repository) DeleteAccount(ctx context.Context, id string) (*AccountDeletion, error) {
	out := &AccountDeletion{}

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		// Lock the profile row so concurrent box creation cannot slip in.
		var locked string
		err := tx.QueryRow(ctx, `SELECT id FROM profiles WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProfileNotFound
		}
		if err != nil {
			return fmt.Errorf("lock profile: %w", err)
		}

		tokens, err := collectStrings(ctx, tx,
			`SELECT token FROM complaint_boxes WHERE admin_id = $1`, id)
		if err != nil {
			return fmt.Errorf("collect box tokens: %w", err)
		}
		keys, err := collectStrings(ctx, tx, `
			SELECT c.attachment_key FROM complaints c
			JOIN complaint_boxes b ON b.id = c.box_id
			WHERE b.admin_id = $1 AND c.attachment_key IS NOT NULL`, id)
		if err != nil {
			return fmt.Errorf("collect attachment keys: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete profile: %w", err)
		}

		out.BoxTokens = tokens
		out.AttachmentKeys = keys
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func collectStrings(ctx context.Context, q interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
}, query string, args ...any) ([]string, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var p model.Profile
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.Username,
		&p.PasswordHash,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return &p, err
}
