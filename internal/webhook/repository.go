package webhook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tellus/tellus/internal/model"
)

// maxErrorLen bounds last_error so a chatty receiver cannot bloat rows.
const maxErrorLen = 500

// Repository handles webhook database operations.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new webhook repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const endpointColumns = `id, admin_id, box_id, name, target_url, secret_hash,
	enabled, event_types, created_at, updated_at`

// CreateEndpoint inserts a new webhook endpoint.
func (r *Repository) CreateEndpoint(ctx context.Context, endpoint *model.WebhookEndpoint) error {
	query := `
		INSERT INTO webhook_endpoints (` + endpointColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		endpoint.ID,
		endpoint.AdminID,
		endpoint.BoxID,
		endpoint.Name,
		endpoint.TargetURL,
		endpoint.SecretHash,
		endpoint.Enabled,
		pq.Array(eventTypeStrings(endpoint.EventTypes)),
		endpoint.CreatedAt,
		endpoint.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook endpoint: %w", err)
	}
	return nil
}

// GetOwnedEndpoint returns the endpoint only if adminID owns it.
func (r *Repository) GetOwnedEndpoint(ctx context.Context, id, adminID string) (*model.WebhookEndpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM webhook_endpoints WHERE id = $1 AND admin_id = $2`

	endpoint, err := scanEndpoint(r.db.QueryRowContext(ctx, query, id, adminID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEndpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query webhook endpoint: %w", err)
	}
	return endpoint, nil
}

// ListEndpointsByAdmin returns an admin's endpoints, newest first.
func (r *Repository) ListEndpointsByAdmin(ctx context.Context, adminID string) ([]*model.WebhookEndpoint, error) {
	query := `SELECT ` + endpointColumns + `
		FROM webhook_endpoints
		WHERE admin_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, adminID)
	if err != nil {
		return nil, fmt.Errorf("query webhooks by admin: %w", err)
	}
	defer rows.Close()

	return scanEndpoints(rows)
}

// ListSubscribedEndpoints returns enabled endpoints of adminID that want
// eventType for boxID, either directly or through an all-boxes subscription.
func (r *Repository) ListSubscribedEndpoints(ctx context.Context, adminID, boxID string, eventType model.EventType) ([]*model.WebhookEndpoint, error) {
	query := `SELECT ` + endpointColumns + `
		FROM webhook_endpoints
		WHERE admin_id = $1
		  AND enabled
		  AND (box_id IS NULL OR box_id = $2)
		  AND $3 = ANY(event_types)
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, adminID, boxID, string(eventType))
	if err != nil {
		return nil, fmt.Errorf("query subscribed webhooks: %w", err)
	}
	defer rows.Close()

	return scanEndpoints(rows)
}

// DeleteEndpoint removes an endpoint and, by cascade, its deliveries.
func (r *Repository) DeleteEndpoint(ctx context.Context, id, adminID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM webhook_endpoints WHERE id = $1 AND admin_id = $2`, id, adminID)
	if err != nil {
		return fmt.Errorf("delete webhook endpoint: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

// CreateDelivery queues a delivery. A second delivery of the same event to
// the same endpoint is ignored.
func (r *Repository) CreateDelivery(ctx context.Context, delivery *model.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (
			id, endpoint_id, event_id, event_type, payload_json,
			status, attempt_count, max_attempts, next_retry_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (endpoint_id, event_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		delivery.ID,
		delivery.EndpointID,
		delivery.EventID,
		string(delivery.EventType),
		delivery.PayloadJSON,
		string(delivery.Status),
		delivery.AttemptCount,
		delivery.MaxAttempts,
		delivery.NextRetryAt,
		delivery.CreatedAt,
		delivery.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

// DueDelivery pairs a claimed delivery with where and how to send it.
type DueDelivery struct {
	Delivery   *model.WebhookDelivery
	TargetURL  string
	SigningKey string
}

// ClaimDueDeliveries leases up to limit due deliveries by pushing their
// next_retry_at forward by lease, so concurrent workers skip them.
func (r *Repository) ClaimDueDeliveries(ctx context.Context, limit int, lease time.Duration) ([]DueDelivery, error) {
	query := `
		WITH due AS (
			SELECT d.id
			FROM webhook_deliveries d
			JOIN webhook_endpoints e ON d.endpoint_id = e.id
			WHERE d.status IN ('pending', 'failed')
			  AND d.next_retry_at <= $1
			  AND e.enabled
			ORDER BY d.next_retry_at
			LIMIT $2
			FOR UPDATE OF d SKIP LOCKED
		)
		UPDATE webhook_deliveries d
		SET next_retry_at = $3
		FROM due, webhook_endpoints e
		WHERE d.id = due.id AND e.id = d.endpoint_id
		RETURNING d.id, d.endpoint_id, d.event_id, d.event_type, d.payload_json,
			d.status, d.attempt_count, d.max_attempts, d.next_retry_at,
			d.last_attempt_at, d.last_status_code, d.last_error,
			d.created_at, d.updated_at, e.target_url, e.secret_hash
	`

	now := time.Now().UTC()
	rows, err := r.db.QueryContext(ctx, query, now, limit, now.Add(lease))
	if err != nil {
		return nil, fmt.Errorf("claim due deliveries: %w", err)
	}
	defer rows.Close()

	var out []DueDelivery
	for rows.Next() {
		var due DueDelivery
		d, err := scanDelivery(rows, &due.TargetURL, &due.SigningKey)
		if err != nil {
			return nil, err
		}
		due.Delivery = d
		out = append(out, due)
	}
	return out, rows.Err()
}

// MarkDelivered records a successful attempt.
func (r *Repository) MarkDelivered(ctx context.Context, id string, statusCode int) error {
	query := `
		UPDATE webhook_deliveries
		SET status = 'success',
			attempt_count = attempt_count + 1,
			last_attempt_at = $2,
			last_status_code = $3,
			last_error = NULL,
			updated_at = $2
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC(), statusCode); err != nil {
		return fmt.Errorf("update delivery success: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt and schedules the next one.
func (r *Repository) MarkFailed(ctx context.Context, id string, statusCode *int, errMsg string, nextRetryAt time.Time, exhausted bool) error {
	status := model.DeliveryStatusFailed
	if exhausted {
		status = model.DeliveryStatusExhausted
	}
	if len(errMsg) > maxErrorLen {
		errMsg = errMsg[:maxErrorLen]
	}

	query := `
		UPDATE webhook_deliveries
		SET status = $2,
			attempt_count = attempt_count + 1,
			last_attempt_at = $3,
			last_status_code = $4,
			last_error = $5,
			next_retry_at = $6,
			updated_at = $3
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, id, string(status), time.Now().UTC(), statusCode, errMsg, nextRetryAt)
	if err != nil {
		return fmt.Errorf("update delivery failure: %w", err)
	}
	return nil
}

// ListDeliveries returns the latest deliveries of an endpoint.
func (r *Repository) ListDeliveries(ctx context.Context, endpointID string, limit int) ([]*model.WebhookDelivery, error) {
	query := `
		SELECT id, endpoint_id, event_id, event_type, payload_json,
			status, attempt_count, max_attempts, next_retry_at,
			last_attempt_at, last_status_code, last_error,
			created_at, updated_at
		FROM webhook_deliveries
		WHERE endpoint_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, endpointID, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var out []*model.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// QueueDepth counts deliveries still awaiting an attempt.
func (r *Repository) QueueDepth(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM webhook_deliveries WHERE status IN ('pending', 'failed')`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count queue depth: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row rowScanner) (*model.WebhookEndpoint, error) {
	var (
		e          model.WebhookEndpoint
		boxID      sql.NullString
		eventTypes []string
	)
	if err := row.Scan(
		&e.ID,
		&e.AdminID,
		&boxID,
		&e.Name,
		&e.TargetURL,
		&e.SecretHash,
		&e.Enabled,
		pq.Array(&eventTypes),
		&e.CreatedAt,
		&e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if boxID.Valid {
		e.BoxID = &boxID.String
	}
	e.EventTypes = make([]model.EventType, len(eventTypes))
	for i, et := range eventTypes {
		e.EventTypes[i] = model.EventType(et)
	}
	return &e, nil
}

func scanEndpoints(rows *sql.Rows) ([]*model.WebhookEndpoint, error) {
	var endpoints []*model.WebhookEndpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook endpoint: %w", err)
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

// scanDelivery scans the delivery columns followed by any extra targets.
func scanDelivery(row rowScanner, extra ...any) (*model.WebhookDelivery, error) {
	var (
		d          model.WebhookDelivery
		eventType  string
		status     string
		lastAt     sql.NullTime
		lastStatus sql.NullInt32
		lastError  sql.NullString
	)
	dest := []any{
		&d.ID,
		&d.EndpointID,
		&d.EventID,
		&eventType,
		&d.PayloadJSON,
		&status,
		&d.AttemptCount,
		&d.MaxAttempts,
		&d.NextRetryAt,
		&lastAt,
		&lastStatus,
		&lastError,
		&d.CreatedAt,
		&d.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, fmt.Errorf("scan delivery: %w", err)
	}

	d.EventType = model.EventType(eventType)
	d.Status = model.DeliveryStatus(status)
	if lastAt.Valid {
		d.LastAttemptAt = &lastAt.Time
	}
	if lastStatus.Valid {
		code := int(lastStatus.Int32)
		d.LastStatusCode = &code
	}
	d.LastError = lastError.String
	return &d, nil
}

func eventTypeStrings(types []model.EventType) []string {
	out := make([]string, len(types))
	for i, et := range types {
		out[i] = string(et)
	}
	return out
}
