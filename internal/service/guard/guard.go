// Package guard is the only writer of booking status. Every change is a
// single conditional update; a zero result means another actor got there
// first and must not be retried blindly.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/spacebook/internal/domain"
	"github.com/kirinyoku/spacebook/internal/repository"
)

// ErrIllegalTransition is returned before touching the store when a
// requested move is not in the transition table.
var ErrIllegalTransition = errors.New("illegal status transition")

type Guard struct {
	bookings repository.BookingRepository
}

func New(bookings repository.BookingRepository) *Guard {
	return &Guard{bookings: bookings}
}

// Try moves one booking from any of from to to.
//
// Returns:
//   - bool: true if this call applied the change.
//   - error: guard.ErrIllegalTransition if some from -> to is not allowed.
func (g *Guard) Try(
	ctx context.Context,
	id uuid.UUID,
	from []domain.BookingStatus,
	to domain.BookingStatus,
	at time.Time,
) (bool, error) {
	const op = "service.guard.Try"

	if err := check(from, to); err != nil {
		return false, fmt.Errorf("%s:%w", op, err)
	}

	n, err := g.bookings.TryTransition(ctx, id, from, to, at)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, err)
	}

	return n == 1, nil
}

// TryMany applies the same conditional move to many bookings at once and
// returns the ids that were changed by this call.
func (g *Guard) TryMany(
	ctx context.Context,
	ids []uuid.UUID,
	from []domain.BookingStatus,
	to domain.BookingStatus,
	at time.Time,
) ([]uuid.UUID, error) {
	const op = "service.guard.TryMany"

	if err := check(from, to); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	moved, err := g.bookings.TryTransitionMany(ctx, ids, from, to, at)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return moved, nil
}

// ExpireStale is the bulk pending -> expired move used by reconciliation.
func (g *Guard) ExpireStale(ctx context.Context, now, unpaidBefore time.Time) (int64, error) {
	const op = "service.guard.ExpireStale"

	n, err := g.bookings.ExpirePending(ctx, now, unpaidBefore)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return n, nil
}

func check(from []domain.BookingStatus, to domain.BookingStatus) error {
	if len(from) == 0 {
		return fmt.Errorf("%w: empty source set", ErrIllegalTransition)
	}
	for _, f := range from {
		if !domain.CanTransition(f, to) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, f, to)
		}
	}
	return nil
}
