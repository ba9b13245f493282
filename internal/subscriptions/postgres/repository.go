// Package postgres provides the PostgreSQL implementation of the
// subscriptions repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mberezin/tubedigest/internal/domain"
	"github.com/mberezin/tubedigest/internal/subscriptions"
)

const uniqueViolation = "23505"

const subscriptionColumns = `id, account_email, channel_url, channel_name, is_active, created_at, updated_at, last_check_at`

// Repository implements subscriptions.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new subscription. The unique index on
// (account_email, channel_url) rejects duplicates at the write path.
func (r *Repository) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (account_email, channel_url, channel_name, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		sub.AccountEmail,
		sub.ChannelURL,
		sub.ChannelName,
		sub.IsActive,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return subscriptions.ErrDuplicateChannel
		}
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

// GetByID retrieves a subscription by id. A malformed id cannot match any
// row, so it maps to ErrNotFound instead of a cast error from postgres.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, subscriptions.ErrNotFound
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	var sub domain.Subscription
	err := r.db.QueryRow(ctx, query, id).Scan(
		&sub.ID,
		&sub.AccountEmail,
		&sub.ChannelURL,
		&sub.ChannelName,
		&sub.IsActive,
		&sub.CreatedAt,
		&sub.UpdatedAt,
		&sub.LastCheckAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subscriptions.ErrNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}

// ListByAccount returns all subscriptions for an account, newest first.
func (r *Repository) ListByAccount(ctx context.Context, accountEmail string) ([]domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE lower(account_email) = lower($1)
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, accountEmail)
}

// ListAll returns every subscription, newest first.
func (r *Repository) ListAll(ctx context.Context) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions ORDER BY created_at DESC`
	return r.list(ctx, query)
}

// ListActive returns every active subscription.
func (r *Repository) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE is_active ORDER BY channel_url`
	return r.list(ctx, query)
}

// ListActiveDueAt returns active subscriptions whose owner has chosen the
// given delivery slot.
func (r *Repository) ListActiveDueAt(ctx context.Context, slot domain.NotifyTime) ([]domain.Subscription, error) {
	query := `
		SELECT s.id, s.account_email, s.channel_url, s.channel_name, s.is_active, s.created_at, s.updated_at, s.last_check_at
		FROM subscriptions s
		JOIN accounts a ON lower(a.email) = lower(s.account_email)
		WHERE s.is_active AND a.notify_at = $1
		ORDER BY s.channel_url
	`
	return r.list(ctx, query, string(slot))
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]domain.Subscription, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]domain.Subscription, 0)
	for rows.Next() {
		var sub domain.Subscription
		err := rows.Scan(
			&sub.ID,
			&sub.AccountEmail,
			&sub.ChannelURL,
			&sub.ChannelName,
			&sub.IsActive,
			&sub.CreatedAt,
			&sub.UpdatedAt,
			&sub.LastCheckAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

// Update persists the mutable subscription fields.
func (r *Repository) Update(ctx context.Context, sub *domain.Subscription) error {
	query := `
		UPDATE subscriptions
		SET channel_url = $2, channel_name = $3, is_active = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		sub.ID,
		sub.ChannelURL,
		sub.ChannelName,
		sub.IsActive,
	).Scan(&sub.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return subscriptions.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return subscriptions.ErrDuplicateChannel
		}
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// Delete removes a subscription.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscriptions.ErrNotFound
	}
	return nil
}

// Counts returns the total and active subscription counts.
func (r *Repository) Counts(ctx context.Context) (int64, int64, error) {
	var total, active int64
	query := `SELECT count(*), count(*) FILTER (WHERE is_active) FROM subscriptions`
	if err := r.db.QueryRow(ctx, query).Scan(&total, &active); err != nil {
		return 0, 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return total, active, nil
}

// SetLastCheck records when the channel was last resolved for this
// subscription.
func (r *Repository) SetLastCheck(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE subscriptions SET last_check_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("set last check: %w", err)
	}
	return nil
}
