package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mberezin/tubedigest/internal/domain"
)

// Scheduler fires a slot-scoped notification batch every half hour,
// matching the delivery slots accounts can choose.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	loc    *time.Location
	logger *slog.Logger
}

// NewScheduler creates a scheduler in the given IANA location. Slots are
// interpreted in that location, so "09:00" means 09:00 local to it.
func NewScheduler(runner *Runner, location string, logger *slog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(location)
	if err != nil {
		return nil, fmt.Errorf("load scheduler location %q: %w", location, err)
	}

	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		runner: runner,
		loc:    loc,
		logger: logger,
	}
	if _, err := s.cron.AddFunc("0,30 * * * *", s.tick); err != nil {
		return nil, fmt.Errorf("register digest schedule: %w", err)
	}
	return s, nil
}

// Start begins firing ticks.
func (s *Scheduler) Start() {
	s.logger.Info("digest scheduler started", "location", s.loc.String())
	s.cron.Start()
}

// Stop halts the schedule and waits for a running tick to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		s.logger.Warn("digest scheduler stop timed out")
	}
}

func (s *Scheduler) tick() {
	now := time.Now().In(s.loc)
	slot, err := domain.ParseNotifyTime(now.Format("15:04"))
	if err != nil {
		// Outside the deliverable window (before 06:00 or after 22:30).
		return
	}

	ctx := context.Background()
	result, err := s.runner.RunForSlot(ctx, slot)
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			s.logger.Warn("skipping slot, batch still running", "slot", string(slot))
			return
		}
		s.logger.Error("slot batch failed", "slot", string(slot), "error", err)
		return
	}

	if result.ChannelsFound == 0 && len(result.Failures) == 0 {
		return
	}
	s.logger.Info("slot batch finished",
		"slot", string(slot),
		"channels_found", result.ChannelsFound,
		"processed_count", result.ProcessedCount,
		"failures", len(result.Failures))
}
