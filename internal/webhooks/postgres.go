package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists subscriptions, delivery records and dedup markers.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const subscriptionColumns = `id, org_id, url, events, secret, active, created_at, updated_at`

func scanSubscription(row pgx.Row) (*WebhookSubscription, error) {
	var sub WebhookSubscription
	var events []string
	if err := row.Scan(&sub.ID, &sub.OrgID, &sub.URL, &events, &sub.Secret, &sub.Active, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.Events = make([]EventType, 0, len(events))
	for _, e := range events {
		sub.Events = append(sub.Events, EventType(e))
	}
	return &sub, nil
}

func eventStrings(events []EventType) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e)
	}
	return out
}

func (r *PostgresStore) querySubscriptions(ctx context.Context, query string, args ...any) ([]*WebhookSubscription, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*WebhookSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Create inserts a new webhook subscription.
func (r *PostgresStore) Create(ctx context.Context, sub *WebhookSubscription) error {
	sub.ID = uuid.New()
	sub.CreatedAt = time.Now().UTC()
	sub.UpdatedAt = sub.CreatedAt
	sub.Active = true

	query := `INSERT INTO webhook_subscriptions (` + subscriptionColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Exec(ctx, query,
		sub.ID, sub.OrgID, sub.URL, eventStrings(sub.Events), sub.Secret, sub.Active, sub.CreatedAt, sub.UpdatedAt,
	)
	return err
}

// Get retrieves a subscription by ID.
func (r *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*WebhookSubscription, error) {
	row := r.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM webhook_subscriptions WHERE id = $1`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// ListByOrg returns all subscriptions owned by an organization.
func (r *PostgresStore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*WebhookSubscription, error) {
	return r.querySubscriptions(ctx,
		`SELECT `+subscriptionColumns+` FROM webhook_subscriptions WHERE org_id = $1 ORDER BY created_at DESC`,
		orgID,
	)
}

// ListActiveForEvent returns all active subscriptions listening for eventType.
// The events column carries a GIN index so this does not scan every row.
func (r *PostgresStore) ListActiveForEvent(ctx context.Context, eventType EventType) ([]*WebhookSubscription, error) {
	return r.querySubscriptions(ctx,
		`SELECT `+subscriptionColumns+` FROM webhook_subscriptions
		 WHERE active = true AND events @> ARRAY[$1]::text[]
		 ORDER BY created_at`,
		string(eventType),
	)
}

// Update writes the mutable fields of a subscription.
func (r *PostgresStore) Update(ctx context.Context, sub *WebhookSubscription) error {
	sub.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx,
		`UPDATE webhook_subscriptions SET url = $2, events = $3, active = $4, updated_at = $5 WHERE id = $1`,
		sub.ID, sub.URL, eventStrings(sub.Events), sub.Active, sub.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a subscription.
func (r *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PutDelivery records a webhook delivery attempt.
func (r *PostgresStore) PutDelivery(ctx context.Context, d *DeliveryAttempt) error {
	query := `INSERT INTO webhook_deliveries (id, webhook_id, event_id, event_type, url, request_body,
	          status_code, response_body, error_message, attempt, success, duration_ms, delivered_at, expires_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.db.Exec(ctx, query,
		d.ID, d.WebhookID, d.EventID, string(d.EventType), d.URL, d.RequestBody,
		d.StatusCode, d.ResponseBody, d.ErrorMessage, d.Attempt, d.Success, d.DurationMs,
		d.DeliveredAt, d.ExpiresAt,
	)
	return err
}

// ListDeliveries returns the most recent unexpired attempts for a webhook.
func (r *PostgresStore) ListDeliveries(ctx context.Context, webhookID uuid.UUID, limit int) ([]*DeliveryAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, webhook_id, event_id, event_type, url, request_body, status_code, response_body,
		        error_message, attempt, success, duration_ms, delivered_at, expires_at
		 FROM webhook_deliveries
		 WHERE webhook_id = $1 AND expires_at > now()
		 ORDER BY delivered_at DESC
		 LIMIT $2`,
		webhookID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DeliveryAttempt
	for rows.Next() {
		var d DeliveryAttempt
		var et string
		if err := rows.Scan(&d.ID, &d.WebhookID, &d.EventID, &et, &d.URL, &d.RequestBody, &d.StatusCode,
			&d.ResponseBody, &d.ErrorMessage, &d.Attempt, &d.Success, &d.DurationMs, &d.DeliveredAt, &d.ExpiresAt,
		); err != nil {
			return nil, err
		}
		d.EventType = EventType(et)
		out = append(out, &d)
	}
	return out, rows.Err()
}

// HasMarker reports whether an unexpired dedup marker exists for key.
func (r *PostgresStore) HasMarker(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM webhook_dedup_markers WHERE key = $1 AND expires_at > now())`, key,
	).Scan(&exists)
	return exists, err
}

// PutMarker stores a dedup marker, refreshing the expiry of an existing one.
func (r *PostgresStore) PutMarker(ctx context.Context, key string, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO webhook_dedup_markers (key, created_at, expires_at) VALUES ($1, now(), $2)
		 ON CONFLICT (key) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		key, expiresAt,
	)
	return err
}

// DeleteExpired removes expired delivery records and dedup markers.
func (r *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM webhook_deliveries WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired deliveries: %w", err)
	}
	n := tag.RowsAffected()
	tag, err = r.db.Exec(ctx, `DELETE FROM webhook_dedup_markers WHERE expires_at <= now()`)
	if err != nil {
		return n, fmt.Errorf("delete expired markers: %w", err)
	}
	return n + tag.RowsAffected(), nil
}
