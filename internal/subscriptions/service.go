package subscriptions

import (
	"context"
	"fmt"

	"github.com/mberezin/tubedigest/internal/domain"
)

// Service provides subscription business logic. Owner-scoped operations
// verify that the caller's email matches the row's account email; the admin
// operations skip that check and are guarded by role middleware upstream.
type Service struct {
	repo Repository
}

// NewService creates a new subscriptions service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Add creates one subscription for the account. This is also the retry path
// for channels that failed during registration fan-out.
func (s *Service) Add(ctx context.Context, accountEmail, channelURL, channelName string) (*domain.Subscription, error) {
	if !domain.ValidChannelURL(channelURL) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidChannelURL, channelURL)
	}

	sub := &domain.Subscription{
		AccountEmail: domain.NormalizeEmail(accountEmail),
		ChannelURL:   channelURL,
		ChannelName:  channelName,
		IsActive:     true,
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ListByAccount returns the full subscription set for an account, active and
// inactive, as a point-in-time read.
func (s *Service) ListByAccount(ctx context.Context, accountEmail string) ([]domain.Subscription, error) {
	return s.repo.ListByAccount(ctx, domain.NormalizeEmail(accountEmail))
}

// UpdateInput carries the mutable subscription fields. Nil leaves a field
// unchanged. The owning account is immutable.
type UpdateInput struct {
	ChannelURL  *string
	ChannelName *string
	IsActive    *bool
}

// Update mutates a subscription owned by callerEmail. Deactivation via
// IsActive is the soft state that excludes a row from digest runs without
// deleting history.
func (s *Service) Update(ctx context.Context, callerEmail, id string, input UpdateInput) (*domain.Subscription, error) {
	sub, err := s.ownedByCaller(ctx, callerEmail, id)
	if err != nil {
		return nil, err
	}

	if input.ChannelURL != nil {
		if !domain.ValidChannelURL(*input.ChannelURL) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidChannelURL, *input.ChannelURL)
		}
		sub.ChannelURL = *input.ChannelURL
	}
	if input.ChannelName != nil {
		sub.ChannelName = *input.ChannelName
	}
	if input.IsActive != nil {
		sub.IsActive = *input.IsActive
	}

	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Delete hard-deletes a subscription owned by callerEmail. Sibling
// subscriptions and the account record are untouched.
func (s *Service) Delete(ctx context.Context, callerEmail, id string) error {
	if _, err := s.ownedByCaller(ctx, callerEmail, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// ListAll returns every subscription, unscoped. Admin only.
func (s *Service) ListAll(ctx context.Context) ([]domain.Subscription, error) {
	return s.repo.ListAll(ctx)
}

// AdminDelete hard-deletes any subscription without an ownership check.
func (s *Service) AdminDelete(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) ownedByCaller(ctx context.Context, callerEmail, id string) (*domain.Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if domain.NormalizeEmail(sub.AccountEmail) != domain.NormalizeEmail(callerEmail) {
		return nil, ErrNotOwner
	}
	return sub, nil
}
