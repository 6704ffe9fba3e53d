// Package scheduler triggers reconciliation on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/kirinyoku/spacebook/internal/service/reconcile"
)

type Reconciler interface {
	Reconcile(ctx context.Context, now time.Time) (reconcile.Result, error)
}

type Scheduler struct {
	s      gocron.Scheduler
	logger *slog.Logger
}

// New registers a single reconcile job. Runs never overlap inside this
// process; a tick that fires while the previous run is busy is dropped.
func New(r Reconciler, interval time.Duration, logger *slog.Logger) (*Scheduler, error) {
	const op = "scheduler.New"

	if interval <= 0 {
		return nil, fmt.Errorf("%s: interval must be positive", op)
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			res, err := r.Reconcile(ctx, time.Now())
			if err != nil {
				logger.Error("scheduled reconcile failed", "error", err,
					"auto_confirmed", res.AutoConfirmed, "skipped", res.Skipped)
			}
		}),
		gocron.WithName("reconcile"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &Scheduler{s: s, logger: logger}, nil
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.s.Start()
	s.logger.Info("scheduler started", "jobs", len(s.s.Jobs()))

	<-ctx.Done()

	if err := s.s.Shutdown(); err != nil {
		return fmt.Errorf("scheduler.Run: shutdown: %w", err)
	}

	return nil
}
