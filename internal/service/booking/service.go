// Package booking is the synchronous request path: admission of new
// bookings and the customer and partner driven status changes.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/spacebook/internal/admission"
	"github.com/kirinyoku/spacebook/internal/domain"
	"github.com/kirinyoku/spacebook/internal/repository"
	"github.com/kirinyoku/spacebook/internal/service/guard"
	"github.com/kirinyoku/spacebook/internal/service/notify"
	"github.com/kirinyoku/spacebook/internal/uow"
)

// Refunder issues a refund for a captured settlement.
type Refunder interface {
	Refund(ctx context.Context, s domain.Settlement) error
}

// EventPublisher announces committed status changes.
type EventPublisher interface {
	PublishBookingChanged(ctx context.Context, b domain.Booking) error
}

type RateLimiter interface {
	Allow(ctx context.Context, id string) (bool, time.Duration, error)
}

type Deps struct {
	Store repository.Store
	// Areas overrides Store.Areas(), typically with a cached reader.
	Areas   repository.AreaRepository
	UoW     *uow.UoW
	Notify  *notify.Service
	Refunds Refunder
	Events  EventPublisher
	Limiter RateLimiter
	Logger  *slog.Logger
}

type Service struct {
	store   repository.Store
	areas   repository.AreaRepository
	uow     *uow.UoW
	guard   *guard.Guard
	notify  *notify.Service
	refunds Refunder
	events  EventPublisher
	limiter RateLimiter
	logger  *slog.Logger
	now     func() time.Time
}

func New(d Deps) *Service {
	s := &Service{
		store:   d.Store,
		areas:   d.Areas,
		uow:     d.UoW,
		guard:   guard.New(d.Store.Bookings()),
		notify:  d.Notify,
		refunds: d.Refunds,
		events:  d.Events,
		limiter: d.Limiter,
		logger:  d.Logger,
		now:     time.Now,
	}

	if s.areas == nil {
		s.areas = d.Store.Areas()
	}
	if s.uow == nil {
		s.uow = uow.NewUoW(d.Store)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.notify == nil {
		s.notify = notify.New(d.Store.Notifications(), notify.LogSink{Logger: s.logger}, s.logger)
	}

	return s
}

// WithClock replaces the wall clock, mostly for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateParams struct {
	AreaID     uuid.UUID
	CustomerID uuid.UUID
	Window     domain.Window
	GuestCount int
	// RateKey identifies the caller for rate limiting; empty disables it.
	RateKey string
}

// Create admits a booking request.
//
// Returns:
//   - *domain.Booking: the stored booking, confirmed or pending.
//   - error: booking.ErrAreaFull if the area rejects over-capacity requests.
//   - error: booking.ErrAreaNotFound if the area does not exist.
//   - error: booking.ErrInvalidWindow, ErrInvalidGuests or ErrWindowStarted on bad input.
func (s *Service) Create(ctx context.Context, p CreateParams) (*domain.Booking, error) {
	const op = "service.booking.Create"

	if p.GuestCount <= 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidGuests)
	}
	if err := p.Window.Validate(); err != nil {
		return nil, fmt.Errorf("%s:%w: %w", op, ErrInvalidWindow, err)
	}

	now := s.now()
	if !p.Window.Start.After(now) {
		return nil, fmt.Errorf("%s:%w", op, ErrWindowStarted)
	}

	if s.limiter != nil && p.RateKey != "" {
		ok, retry, err := s.limiter.Allow(ctx, p.RateKey)
		switch {
		case err != nil:
			s.logger.Warn("rate limiter unavailable, admitting", "key", p.RateKey, "error", err)
		case !ok:
			return nil, fmt.Errorf("%s:%w", op, RateLimitedError{RetryAfter: retry})
		}
	}

	area, err := s.areas.Get(ctx, p.AreaID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrAreaNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var created domain.Booking

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		active, err := tx.Bookings().CountActiveOverlap(ctx, area.ID, p.Window, uuid.Nil)
		if err != nil {
			return err
		}

		d := admission.Decide(admission.Input{
			AutomaticBookingEnabled:   area.AutomaticBookingEnabled,
			RequestApprovalAtCapacity: area.RequestApprovalAtCapacity,
			MaxCapacity:               area.MaxCapacity,
			ActiveCount:               active,
			GuestCount:                p.GuestCount,
		})
		if d.Kind == domain.DecisionRejectFull {
			return ErrAreaFull
		}

		created = domain.Booking{
			ID:              uuid.New(),
			SpaceID:         area.SpaceID,
			AreaID:          area.ID,
			CustomerID:      p.CustomerID,
			PartnerID:       area.PartnerID,
			Window:          p.Window,
			GuestCount:      p.GuestCount,
			AreaMaxCapacity: snapshot(area.MaxCapacity),
			Status:          d.Status,
			Decision:        d.Kind,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if err := tx.Bookings().Create(ctx, &created); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			s.publish(ctx, created)
			if created.Status == domain.StatusConfirmed {
				s.notifyConfirmed(ctx, created)
			} else {
				s.notifyPartner(ctx, created, notify.BookingReviewRequested)
			}
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &created, nil
}

// Get returns a booking by id.
//
// Returns:
//   - error: booking.ErrBookingNotFound if the booking does not exist.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.Get"

	b, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrBookingNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, nil
}

// Cancel moves a pending or confirmed booking to cancelled and refunds a
// captured payment. A refund failure is logged; the cancellation stands.
//
// Returns:
//   - error: booking.NotCancellableError if the booking was not cancellable.
//   - error: booking.ErrBookingNotFound if the booking does not exist.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.Cancel"

	b, err := s.transition(ctx, id,
		[]domain.BookingStatus{domain.StatusPending, domain.StatusConfirmed},
		domain.StatusCancelled)
	if err != nil {
		var lost PreconditionLostError
		if errors.As(err, &lost) {
			return nil, fmt.Errorf("%s:%w", op, NotCancellableError(lost))
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.refund(ctx, *b)
	s.publish(ctx, *b)
	s.notifyPartner(ctx, *b, notify.BookingCancelled)

	return b, nil
}

// ConfirmPayment is called once checkout reports a captured payment. The
// booking is confirmed if it still fits the area; otherwise it stays pending
// for review.
//
// Returns:
//   - error: booking.ErrPaymentNotCaptured if no successful settlement exists.
//   - error: booking.PreconditionLostError if the booking left pending meanwhile.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.ConfirmPayment"

	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if _, err := s.store.Settlements().LatestSuccessful(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrPaymentNotCaptured)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	area, err := s.areas.Get(ctx, b.AreaID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrAreaNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	active, err := s.store.Bookings().CountActiveOverlap(ctx, b.AreaID, b.Window, b.ID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	d := admission.Decide(admission.Input{
		AutomaticBookingEnabled:   area.AutomaticBookingEnabled,
		RequestApprovalAtCapacity: area.RequestApprovalAtCapacity,
		MaxCapacity:               b.AreaMaxCapacity,
		ActiveCount:               active,
		GuestCount:                b.GuestCount,
	})

	if d.Status != domain.StatusConfirmed {
		if b.Status != domain.StatusPending {
			return nil, fmt.Errorf("%s:%w", op, PreconditionLostError{BookingID: b.ID, Status: b.Status})
		}
		s.notifyPartner(ctx, *b, notify.BookingReviewRequested)
		return b, nil
	}

	confirmed, err := s.transition(ctx, id,
		[]domain.BookingStatus{domain.StatusPending},
		domain.StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.publish(ctx, *confirmed)
	s.notifyConfirmed(ctx, *confirmed)

	return confirmed, nil
}

// Approve is the partner accepting a booking held for review.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.Approve"

	b, err := s.transition(ctx, id,
		[]domain.BookingStatus{domain.StatusPending},
		domain.StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.publish(ctx, *b)
	s.notifyConfirmed(ctx, *b)

	return b, nil
}

// Reject is the partner declining a booking held for review.
func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.Reject"

	b, err := s.transition(ctx, id,
		[]domain.BookingStatus{domain.StatusPending},
		domain.StatusRejected)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.refund(ctx, *b)
	s.publish(ctx, *b)
	s.send(ctx, notify.BookingRejected(*b))

	return b, nil
}

// RejectMany rejects a batch of pending bookings in one guarded statement.
// Ids that are no longer pending are left untouched.
//
// Returns:
//   - int64: how many bookings were rejected.
func (s *Service) RejectMany(ctx context.Context, ids []uuid.UUID) (int64, error) {
	const op = "service.booking.RejectMany"

	if len(ids) == 0 {
		return 0, nil
	}

	moved, err := s.guard.TryMany(ctx, ids,
		[]domain.BookingStatus{domain.StatusPending},
		domain.StatusRejected, s.now())
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	for _, id := range moved {
		b, err := s.store.Bookings().Get(ctx, id)
		if err != nil {
			s.logger.Warn("reload rejected booking failed", "booking_id", id, "error", err)
			continue
		}
		s.refund(ctx, *b)
		s.publish(ctx, *b)
		s.send(ctx, notify.BookingRejected(*b))
	}

	return int64(len(moved)), nil
}

func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.CheckIn"

	b, err := s.simple(ctx, id, domain.StatusCheckedIn)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, nil
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.Complete"

	b, err := s.simple(ctx, id, domain.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, nil
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.MarkNoShow"

	b, err := s.simple(ctx, id, domain.StatusNoShow)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, nil
}

// Occupancy returns the guests committed to windows overlapping w.
func (s *Service) Occupancy(ctx context.Context, areaID uuid.UUID, w domain.Window) (int, error) {
	const op = "service.booking.Occupancy"

	if err := w.Validate(); err != nil {
		return 0, fmt.Errorf("%s:%w: %w", op, ErrInvalidWindow, err)
	}

	if _, err := s.areas.Get(ctx, areaID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("%s:%w", op, ErrAreaNotFound)
		}
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	n, err := s.store.Bookings().CountActiveOverlap(ctx, areaID, w, uuid.Nil)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return n, nil
}

func (s *Service) simple(ctx context.Context, id uuid.UUID, to domain.BookingStatus) (*domain.Booking, error) {
	b, err := s.transition(ctx, id, []domain.BookingStatus{domain.StatusConfirmed}, to)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, *b)

	return b, nil
}

// transition applies one guarded move. When the guard applies nothing the
// booking is read back only to report its current state.
func (s *Service) transition(
	ctx context.Context,
	id uuid.UUID,
	from []domain.BookingStatus,
	to domain.BookingStatus,
) (*domain.Booking, error) {
	applied, err := s.guard.Try(ctx, id, from, to, s.now())
	if err != nil {
		return nil, err
	}

	b, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	if !applied {
		return nil, PreconditionLostError{BookingID: id, Status: b.Status}
	}

	return b, nil
}

func (s *Service) refund(ctx context.Context, b domain.Booking) {
	if s.refunds == nil {
		return
	}

	st, err := s.store.Settlements().LatestSuccessful(ctx, b.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("settlement lookup failed", "booking_id", b.ID, "error", err)
		}
		return
	}

	if err := s.refunds.Refund(ctx, *st); err != nil {
		s.logger.Error("refund failed", "booking_id", b.ID, "settlement_id", st.ID, "error", err)
		return
	}

	s.logger.Info("refund requested", "booking_id", b.ID, "settlement_id", st.ID)
}

func (s *Service) publish(ctx context.Context, b domain.Booking) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishBookingChanged(ctx, b); err != nil {
		s.logger.Warn("publish booking change failed", "booking_id", b.ID, "error", err)
	}
}

func (s *Service) notifyConfirmed(ctx context.Context, b domain.Booking) {
	s.send(ctx, notify.BookingConfirmed(b))
	s.notifyPartner(ctx, b, notify.BookingNew)
}

func (s *Service) send(ctx context.Context, n domain.Notification) {
	if _, err := s.notify.Once(ctx, n); err != nil {
		s.logger.Warn("notification failed", "booking_id", n.BookingID, "type", n.Type, "error", err)
	}
}

func (s *Service) notifyPartner(ctx context.Context, b domain.Booking, build func(domain.Booking) (domain.Notification, bool)) {
	n, ok := build(b)
	if !ok {
		return
	}
	s.send(ctx, n)
}

func snapshot(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
