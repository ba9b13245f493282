package digest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mberezin/tubedigest/internal/mail"
)

// SubscriptionCounter exposes the subscription totals needed for stats.
type SubscriptionCounter interface {
	Counts(ctx context.Context) (total, active int64, err error)
}

// AccountCounter exposes the account total needed for stats.
type AccountCounter interface {
	CountAccounts(ctx context.Context) (int64, error)
}

// Stats is the admin overview of the service.
type Stats struct {
	TotalAccounts       int64 `json:"total_accounts"`
	TotalSubscriptions  int64 `json:"total_subscriptions"`
	ActiveSubscriptions int64 `json:"active_subscriptions"`
	TotalEmailsSent     int64 `json:"total_emails_sent"`
}

// Service exposes the admin-facing digest operations: stats, test email
// delivery and triggering a notification batch.
type Service struct {
	runner   *Runner
	sender   EmailSender
	renderer *Renderer
	repo     Repository
	subs     SubscriptionCounter
	accounts AccountCounter
	logger   *slog.Logger
}

// NewService creates a digest service. The sender may be nil when mail
// delivery is disabled; delivery operations then fail with ErrMailDisabled.
func NewService(
	runner *Runner,
	sender EmailSender,
	renderer *Renderer,
	repo Repository,
	subs SubscriptionCounter,
	accounts AccountCounter,
	logger *slog.Logger,
) *Service {
	return &Service{
		runner:   runner,
		sender:   sender,
		renderer: renderer,
		repo:     repo,
		subs:     subs,
		accounts: accounts,
		logger:   logger,
	}
}

// Stats collects the admin overview counters.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	total, active, err := s.subs.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count subscriptions: %w", err)
	}
	sent, err := s.repo.CountSent(ctx)
	if err != nil {
		return nil, fmt.Errorf("count sent emails: %w", err)
	}
	accounts, err := s.accounts.CountAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count accounts: %w", err)
	}
	return &Stats{
		TotalAccounts:       accounts,
		TotalSubscriptions:  total,
		ActiveSubscriptions: active,
		TotalEmailsSent:     sent,
	}, nil
}

// SendTestEmail delivers a one-off message so an operator can verify the
// mail transport. A relay failure is surfaced to the caller rather than
// swallowed.
func (s *Service) SendTestEmail(ctx context.Context, to, subject, message string) error {
	if s.sender == nil {
		return ErrMailDisabled
	}

	body, err := s.renderer.TestEmail(message)
	if err != nil {
		return err
	}

	sendErr := s.sender.Send(ctx, mail.Message{To: to, Subject: subject, Body: body})

	entry := &EmailLog{Recipient: to, Subject: subject, IsSuccessful: sendErr == nil}
	if sendErr != nil {
		entry.ErrorMessage = sendErr.Error()
	}
	if err := s.repo.LogEmail(ctx, entry); err != nil {
		s.logger.Warn("email log write failed", "recipient", to, "error", err)
	}

	if sendErr != nil {
		return fmt.Errorf("%w: %s", ErrSendFailed, sendErr)
	}
	s.logger.Info("test email sent", "recipient", to)
	return nil
}

// RunBatch triggers a full notification batch over every active
// subscription.
func (s *Service) RunBatch(ctx context.Context) (*Result, error) {
	if s.sender == nil {
		return nil, ErrMailDisabled
	}
	return s.runner.Run(ctx)
}
