// Package subscriptions manages the (account, channel) subscription store.
package subscriptions

import (
	"context"
	"time"

	"github.com/mberezin/tubedigest/internal/domain"
)

// Repository defines the interface for the subscription store.
type Repository interface {
	Create(ctx context.Context, sub *domain.Subscription) error
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
	ListByAccount(ctx context.Context, accountEmail string) ([]domain.Subscription, error)
	ListAll(ctx context.Context) ([]domain.Subscription, error)
	ListActive(ctx context.Context) ([]domain.Subscription, error)
	ListActiveDueAt(ctx context.Context, slot domain.NotifyTime) ([]domain.Subscription, error)
	Update(ctx context.Context, sub *domain.Subscription) error
	Delete(ctx context.Context, id string) error
	Counts(ctx context.Context) (total, active int64, err error)
	SetLastCheck(ctx context.Context, id string, at time.Time) error
}
