// Package reconcile re-evaluates pending bookings against the clock and
// current occupancy. Each run is safe to repeat and to overlap with another
// run: every status change goes through the guard.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/spacebook/internal/admission"
	"github.com/kirinyoku/spacebook/internal/domain"
	"github.com/kirinyoku/spacebook/internal/repository"
	"github.com/kirinyoku/spacebook/internal/service/guard"
	"github.com/kirinyoku/spacebook/internal/service/notify"
)

type Config struct {
	// AutoConfirmAfter is how old a paid pending booking must be before the
	// job confirms it on the customer's behalf.
	AutoConfirmAfter time.Duration
	// WarningHorizon is the look-ahead for over-capacity warnings.
	WarningHorizon time.Duration
	// UnpaidExpiryAfter is how long a booking may stay pending without any
	// settlement record.
	UnpaidExpiryAfter time.Duration
	// Lookback bounds how far back the auto-confirm pass searches.
	Lookback time.Duration
	// BatchSize is the page size of candidate queries. A pass keeps paging
	// until its range is exhausted, so bookings that stay pending cannot
	// hide newer candidates.
	BatchSize int
}

func (c Config) withDefaults() Config {
	if c.AutoConfirmAfter <= 0 {
		c.AutoConfirmAfter = 10 * time.Minute
	}
	if c.WarningHorizon <= 0 {
		c.WarningHorizon = 15 * time.Minute
	}
	if c.UnpaidExpiryAfter <= 0 {
		c.UnpaidExpiryAfter = 30 * time.Minute
	}
	if c.Lookback <= 0 || c.Lookback < c.AutoConfirmAfter {
		c.Lookback = 24 * time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	return c
}

// Result counts what one run changed. Skipped counts candidates dropped
// because of a per-item error; they are picked up again next run.
type Result struct {
	AutoConfirmed    int   `json:"auto_confirmed"`
	Expired          int64 `json:"expired"`
	CapacityWarnings int   `json:"capacity_warnings"`
	Skipped          int   `json:"skipped"`
}

// EventPublisher announces committed status changes.
type EventPublisher interface {
	PublishBookingChanged(ctx context.Context, b domain.Booking) error
}

type Service struct {
	bookings repository.BookingRepository
	guard    *guard.Guard
	notify   *notify.Service
	events   EventPublisher
	logger   *slog.Logger
	cfg      Config
}

func New(
	store repository.Store,
	notifier *notify.Service,
	events EventPublisher,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.New(store.Notifications(), notify.LogSink{Logger: logger}, logger)
	}

	return &Service{
		bookings: store.Bookings(),
		guard:    guard.New(store.Bookings()),
		notify:   notifier,
		events:   events,
		logger:   logger,
		cfg:      cfg.withDefaults(),
	}
}

// Reconcile runs the auto-confirm, capacity-warning and expiry passes in that
// order against a single now. A pass whose candidate query fails stops the
// run; counters of completed passes are still returned.
func (s *Service) Reconcile(ctx context.Context, now time.Time) (Result, error) {
	const op = "service.reconcile.Reconcile"

	var res Result

	if err := s.autoConfirm(ctx, now, &res); err != nil {
		return res, fmt.Errorf("%s:%w", op, err)
	}

	if err := s.warnCapacity(ctx, now, &res); err != nil {
		return res, fmt.Errorf("%s:%w", op, err)
	}

	expired, err := s.guard.ExpireStale(ctx, now, now.Add(-s.cfg.UnpaidExpiryAfter))
	if err != nil {
		return res, fmt.Errorf("%s:%w", op, err)
	}
	res.Expired = expired

	s.logger.Info("reconcile finished",
		"auto_confirmed", res.AutoConfirmed,
		"capacity_warnings", res.CapacityWarnings,
		"expired", res.Expired,
		"skipped", res.Skipped,
	)

	return res, nil
}

type candidateLister func(ctx context.Context, after repository.Cursor, limit int) ([]domain.Booking, error)

// eachCandidate pages through list in keyset order and calls visit for
// every booking.
func (s *Service) eachCandidate(
	ctx context.Context,
	list candidateLister,
	key func(domain.Booking) time.Time,
	visit func(domain.Booking),
) error {
	var cur repository.Cursor
	for {
		page, err := list(ctx, cur, s.cfg.BatchSize)
		if err != nil {
			return err
		}

		for _, b := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			visit(b)
		}

		if len(page) < s.cfg.BatchSize {
			return nil
		}
		last := page[len(page)-1]
		cur = repository.Cursor{Key: key(last), ID: last.ID}
	}
}

func (s *Service) autoConfirm(ctx context.Context, now time.Time, res *Result) error {
	list := func(ctx context.Context, after repository.Cursor, limit int) ([]domain.Booking, error) {
		return s.bookings.ListStalePaidPending(ctx,
			now.Add(-s.cfg.Lookback),
			now.Add(-s.cfg.AutoConfirmAfter),
			after, limit,
		)
	}

	err := s.eachCandidate(ctx, list, createdAt, func(b domain.Booking) {
		// Windows that are already over are left to the expiry pass.
		if !b.End.After(now) {
			return
		}

		confirmed, err := s.tryAutoConfirm(ctx, b, now)
		if err != nil {
			res.Skipped++
			s.logger.Warn("auto-confirm skipped", "booking_id", b.ID, "error", err)
			return
		}
		if confirmed {
			res.AutoConfirmed++
		}
	})
	if err != nil {
		return fmt.Errorf("auto-confirm candidates: %w", err)
	}

	return nil
}

func (s *Service) tryAutoConfirm(ctx context.Context, b domain.Booking, now time.Time) (bool, error) {
	active, err := s.bookings.CountActiveOverlap(ctx, b.AreaID, b.Window, b.ID)
	if err != nil {
		return false, err
	}

	d := admission.Decide(admission.Input{
		AutomaticBookingEnabled: true,
		MaxCapacity:             b.AreaMaxCapacity,
		ActiveCount:             active,
		GuestCount:              b.GuestCount,
	})
	if d.Status != domain.StatusConfirmed {
		return false, nil
	}

	applied, err := s.guard.Try(ctx, b.ID,
		[]domain.BookingStatus{domain.StatusPending},
		domain.StatusConfirmed, now)
	if err != nil || !applied {
		return false, err
	}

	b.Status = domain.StatusConfirmed
	b.UpdatedAt = now

	if s.events != nil {
		if err := s.events.PublishBookingChanged(ctx, b); err != nil {
			s.logger.Warn("publish booking change failed", "booking_id", b.ID, "error", err)
		}
	}

	s.send(ctx, notify.BookingConfirmed(b))
	if n, ok := notify.BookingNew(b); ok {
		s.send(ctx, n)
	}

	return true, nil
}

func (s *Service) warnCapacity(ctx context.Context, now time.Time, res *Result) error {
	list := func(ctx context.Context, after repository.Cursor, limit int) ([]domain.Booking, error) {
		return s.bookings.ListStartingPaidPending(ctx, now, now.Add(s.cfg.WarningHorizon), after, limit)
	}

	err := s.eachCandidate(ctx, list, startAt, func(b domain.Booking) {
		if b.AreaMaxCapacity == nil {
			return
		}

		warned, err := s.warnOne(ctx, b)
		if err != nil {
			res.Skipped++
			s.logger.Warn("capacity warning skipped", "booking_id", b.ID, "error", err)
			return
		}
		if warned {
			res.CapacityWarnings++
		}
	})
	if err != nil {
		return fmt.Errorf("capacity warning candidates: %w", err)
	}

	return nil
}

// warnOne reports true when at least one new warning was recorded.
func (s *Service) warnOne(ctx context.Context, b domain.Booking) (bool, error) {
	active, err := s.bookings.CountActiveOverlap(ctx, b.AreaID, b.Window, b.ID)
	if err != nil {
		return false, err
	}

	if !admission.OverCapacity(b.AreaMaxCapacity, active, b.GuestCount) {
		return false, nil
	}

	projected := admission.Projected(active, b.GuestCount)

	created, err := s.notify.Once(ctx, notify.CapacityWarningCustomer(b, projected))
	if err != nil {
		return false, err
	}

	if n, ok := notify.CapacityWarningPartner(b, projected); ok {
		partnerCreated, err := s.notify.Once(ctx, n)
		if err != nil {
			return created, err
		}
		created = created || partnerCreated
	}

	return created, nil
}

func (s *Service) send(ctx context.Context, n domain.Notification) {
	if _, err := s.notify.Once(ctx, n); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("notification failed", "booking_id", n.BookingID, "type", n.Type, "error", err)
	}
}

func createdAt(b domain.Booking) time.Time { return b.CreatedAt }
func startAt(b domain.Booking) time.Time   { return b.Start }
