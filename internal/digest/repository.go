package digest

import (
	"context"
	"time"

	"github.com/mberezin/tubedigest/internal/domain"
)

// EmailLog is one delivery attempt recorded for auditing and stats.
type EmailLog struct {
	ID             string    `json:"id"`
	SubscriptionID *string   `json:"subscription_id,omitempty"`
	Recipient      string    `json:"recipient"`
	Subject        string    `json:"subject"`
	IsSuccessful   bool      `json:"is_successful"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	SentAt         time.Time `json:"sent_at"`
}

// Repository defines the interface for the email log store.
type Repository interface {
	LogEmail(ctx context.Context, entry *EmailLog) error
	CountSent(ctx context.Context) (int64, error)
}

// SubscriptionSource is the view of the subscription store the batch needs:
// the active set, optionally narrowed to one delivery slot, plus the
// per-subscription resolution timestamp.
type SubscriptionSource interface {
	ListActive(ctx context.Context) ([]domain.Subscription, error)
	ListActiveDueAt(ctx context.Context, slot domain.NotifyTime) ([]domain.Subscription, error)
	SetLastCheck(ctx context.Context, id string, at time.Time) error
}
