package digest

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mberezin/tubedigest/internal/domain"
	"github.com/mberezin/tubedigest/internal/mail"
)

// EmailSender dispatches a single message. *mail.Sender satisfies it.
type EmailSender interface {
	Send(ctx context.Context, msg mail.Message) error
}

// FailureKind tells which stage of the batch a failure belongs to.
type FailureKind string

const (
	FailureChannel FailureKind = "channel"
	FailureEmail   FailureKind = "email"
)

// Failure is one recorded unit failure from a batch run. Channel failures
// carry no recipient; email failures carry both.
type Failure struct {
	Kind       FailureKind `json:"kind"`
	ChannelURL string      `json:"channel_url"`
	Recipient  string      `json:"recipient,omitempty"`
	Message    string      `json:"message"`
}

// Result summarizes one batch run.
type Result struct {
	RunID          string    `json:"run_id"`
	ProcessedCount int       `json:"processed_count"`
	ChannelsFound  int       `json:"channels_found"`
	Failures       []Failure `json:"failures"`
	StartedAt      time.Time `json:"started_at"`
	Duration       string    `json:"duration"`
}

// RunnerConfig bounds the batch fan-out and the per-call budget against
// the resolver.
type RunnerConfig struct {
	ChannelConcurrency int
	EmailConcurrency   int
	RequestTimeout     time.Duration
}

// Runner executes notification batches. A run groups the active
// subscriptions by channel URL, resolves each distinct channel exactly once,
// then emails every subscriber of channels that produced new uploads. Every
// unit failure is recorded on the result; none aborts the run.
type Runner struct {
	subs     SubscriptionSource
	resolver Resolver
	sender   EmailSender
	renderer *Renderer
	repo     Repository
	config   RunnerConfig
	logger   *slog.Logger

	running atomic.Bool
}

// NewRunner creates a batch runner.
func NewRunner(
	subs SubscriptionSource,
	resolver Resolver,
	sender EmailSender,
	renderer *Renderer,
	repo Repository,
	config RunnerConfig,
	logger *slog.Logger,
) *Runner {
	if config.ChannelConcurrency <= 0 {
		config.ChannelConcurrency = 4
	}
	if config.EmailConcurrency <= 0 {
		config.EmailConcurrency = 8
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	return &Runner{
		subs:     subs,
		resolver: resolver,
		sender:   sender,
		renderer: renderer,
		repo:     repo,
		config:   config,
		logger:   logger,
	}
}

// Run executes a batch over every active subscription. Only one run may be
// active at a time; a second caller gets ErrRunInProgress immediately.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	return r.run(ctx, r.subs.ListActive)
}

// RunForSlot executes a batch over the active subscriptions whose owner
// chose the given delivery slot. The scheduler calls this every half hour.
func (r *Runner) RunForSlot(ctx context.Context, slot domain.NotifyTime) (*Result, error) {
	return r.run(ctx, func(ctx context.Context) ([]domain.Subscription, error) {
		return r.subs.ListActiveDueAt(ctx, slot)
	})
}

func (r *Runner) run(ctx context.Context, list func(context.Context) ([]domain.Subscription, error)) (*Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	runID := uuid.New().String()
	logger := r.logger.With("run_id", runID)

	started := time.Now()
	batchRunsTotal.Inc()

	subs, err := list(ctx)
	if err != nil {
		return nil, err
	}

	byChannel := groupByChannel(subs)

	var (
		mu        sync.Mutex
		processed int
		found     int
		failures  []Failure
	)

	g := &errgroup.Group{}
	g.SetLimit(r.config.ChannelConcurrency)

	for url, subscribers := range byChannel {
		g.Go(func() error {
			dig, err := r.resolveChannel(ctx, url)
			if err != nil {
				logger.Warn("channel resolution failed", "channel_url", url, "error", err)
				channelResolutionsTotal.WithLabelValues("error").Inc()
				mu.Lock()
				failures = append(failures, Failure{Kind: FailureChannel, ChannelURL: url, Message: err.Error()})
				mu.Unlock()
				return nil
			}
			channelResolutionsTotal.WithLabelValues("ok").Inc()

			mu.Lock()
			found++
			mu.Unlock()

			now := time.Now()
			for _, sub := range subscribers {
				if err := r.subs.SetLastCheck(ctx, sub.ID, now); err != nil {
					logger.Warn("set last check failed", "subscription_id", sub.ID, "error", err)
				}
			}

			if len(dig.Videos) == 0 {
				logger.Debug("no new uploads", "channel_url", url)
				return nil
			}

			sent, chFailures := r.dispatch(ctx, dig, subscribers)
			mu.Lock()
			processed += sent
			failures = append(failures, chFailures...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // goroutines collect failures instead of returning errors

	result := &Result{
		RunID:          runID,
		ProcessedCount: processed,
		ChannelsFound:  found,
		Failures:       failures,
		StartedAt:      started,
		Duration:       time.Since(started).Round(time.Millisecond).String(),
	}
	batchDuration.Observe(time.Since(started).Seconds())

	logger.Info("notification batch finished",
		"channels_found", found,
		"processed_count", processed,
		"failures", len(failures),
		"duration", result.Duration)
	return result, nil
}

// dispatch emails one rendered digest to every subscriber of a channel,
// bounded by EmailConcurrency. Each delivery succeeds or fails on its own.
func (r *Runner) dispatch(ctx context.Context, dig *ChannelDigest, subscribers []domain.Subscription) (int, []Failure) {
	subject, body, err := r.renderer.Digest(dig)
	if err != nil {
		failures := make([]Failure, 0, len(subscribers))
		for _, sub := range subscribers {
			failures = append(failures, Failure{
				Kind:       FailureEmail,
				ChannelURL: dig.ChannelURL,
				Recipient:  sub.AccountEmail,
				Message:    err.Error(),
			})
		}
		return 0, failures
	}

	var (
		mu       sync.Mutex
		sent     int
		failures []Failure
	)

	g := &errgroup.Group{}
	g.SetLimit(r.config.EmailConcurrency)

	for _, sub := range subscribers {
		g.Go(func() error {
			sendErr := r.sender.Send(ctx, mail.Message{
				To:      sub.AccountEmail,
				Subject: subject,
				Body:    body,
			})
			r.logDelivery(ctx, sub, subject, sendErr)

			if sendErr != nil {
				r.logger.Warn("digest delivery failed",
					"channel_url", dig.ChannelURL,
					"recipient", sub.AccountEmail,
					"error", sendErr)
				emailsSentTotal.WithLabelValues("error").Inc()
				mu.Lock()
				failures = append(failures, Failure{
					Kind:       FailureEmail,
					ChannelURL: dig.ChannelURL,
					Recipient:  sub.AccountEmail,
					Message:    sendErr.Error(),
				})
				mu.Unlock()
				return nil
			}

			emailsSentTotal.WithLabelValues("ok").Inc()
			mu.Lock()
			sent++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return sent, failures
}

func (r *Runner) resolveChannel(ctx context.Context, url string) (*ChannelDigest, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.RequestTimeout)
	defer cancel()
	return r.resolver.Resolve(ctx, url)
}

// logDelivery records the attempt in the email log. Logging is best effort;
// a log write failure never fails the delivery.
func (r *Runner) logDelivery(ctx context.Context, sub domain.Subscription, subject string, sendErr error) {
	if r.repo == nil {
		return
	}
	entry := &EmailLog{
		SubscriptionID: &sub.ID,
		Recipient:      sub.AccountEmail,
		Subject:        subject,
		IsSuccessful:   sendErr == nil,
	}
	if sendErr != nil {
		entry.ErrorMessage = sendErr.Error()
	}
	if err := r.repo.LogEmail(ctx, entry); err != nil {
		r.logger.Warn("email log write failed", "recipient", sub.AccountEmail, "error", err)
	}
}

// groupByChannel buckets subscriptions by exact channel URL. Subscriber
// order within a bucket is kept stable for deterministic tests and logs.
func groupByChannel(subs []domain.Subscription) map[string][]domain.Subscription {
	byChannel := make(map[string][]domain.Subscription)
	for _, sub := range subs {
		byChannel[sub.ChannelURL] = append(byChannel[sub.ChannelURL], sub)
	}
	for _, bucket := range byChannel {
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].AccountEmail < bucket[j].AccountEmail
		})
	}
	return byChannel
}
