// Package postgres provides the PostgreSQL implementation of the email
// log store.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mberezin/tubedigest/internal/digest"
)

// Repository implements digest.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// LogEmail appends one delivery attempt to the log.
func (r *Repository) LogEmail(ctx context.Context, entry *digest.EmailLog) error {
	query := `
		INSERT INTO email_logs (subscription_id, recipient, subject, is_successful, error_message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, sent_at
	`
	err := r.db.QueryRow(ctx, query,
		entry.SubscriptionID,
		entry.Recipient,
		entry.Subject,
		entry.IsSuccessful,
		entry.ErrorMessage,
	).Scan(&entry.ID, &entry.SentAt)
	if err != nil {
		return fmt.Errorf("log email: %w", err)
	}
	return nil
}

// CountSent returns the number of successful deliveries.
func (r *Repository) CountSent(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM email_logs WHERE is_successful`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count sent emails: %w", err)
	}
	return count, nil
}
