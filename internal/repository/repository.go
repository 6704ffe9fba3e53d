package repository

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/spacebook/internal/domain"
)

// BookingRepository persists bookings. Status is only ever changed through
// the conditional TryTransition* and ExpirePending methods.
type BookingRepository interface {
	Create(ctx context.Context, b *domain.Booking) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error)

	// CountActiveOverlap sums guest_count over active bookings of the area
	// whose window overlaps w. exclude, when not uuid.Nil, is left out.
	CountActiveOverlap(ctx context.Context, areaID uuid.UUID, w domain.Window, exclude uuid.UUID) (int, error)

	// TryTransition sets status = to where id matches and the current status
	// is in from. It returns the number of rows changed (0 or 1).
	TryTransition(ctx context.Context, id uuid.UUID, from []domain.BookingStatus, to domain.BookingStatus, at time.Time) (int64, error)
	// TryTransitionMany applies the same predicate to every id in one
	// statement and returns the ids it changed.
	TryTransitionMany(ctx context.Context, ids []uuid.UUID, from []domain.BookingStatus, to domain.BookingStatus, at time.Time) ([]uuid.UUID, error)
	// ExpirePending moves to expired every pending booking whose window has
	// started by now, or that was created before unpaidBefore and has no
	// settlement record of any kind.
	ExpirePending(ctx context.Context, now, unpaidBefore time.Time) (int64, error)

	// ListStalePaidPending returns up to limit pending bookings created in
	// [createdAfter, createdBefore) that have a successful settlement,
	// ordered by (created_at, id) and positioned after the cursor.
	ListStalePaidPending(ctx context.Context, createdAfter, createdBefore time.Time, after Cursor, limit int) ([]domain.Booking, error)
	// ListStartingPaidPending returns up to limit pending bookings starting
	// in [from, until) that have a settlement record, ordered by
	// (start_at, id) and positioned after the cursor.
	ListStartingPaidPending(ctx context.Context, from, until time.Time, after Cursor, limit int) ([]domain.Booking, error)
}

// Cursor is a keyset position over (Key, ID). The zero Cursor is the start.
type Cursor struct {
	Key time.Time
	ID  uuid.UUID
}

func (c Cursor) IsZero() bool {
	return c.Key.IsZero() && c.ID == uuid.Nil
}

// Precedes reports whether (key, id) sorts strictly after c.
func (c Cursor) Precedes(key time.Time, id uuid.UUID) bool {
	if c.IsZero() {
		return true
	}
	if !key.Equal(c.Key) {
		return key.After(c.Key)
	}
	return bytes.Compare(id[:], c.ID[:]) > 0
}

type AreaRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Area, error)
}

type SettlementRepository interface {
	// LatestSuccessful returns the most recent succeeded settlement of a
	// booking, or ErrNotFound.
	LatestSuccessful(ctx context.Context, bookingID uuid.UUID) (*domain.Settlement, error)
}

type NotificationRepository interface {
	Exists(ctx context.Context, bookingID uuid.UUID, typ domain.NotificationType) (bool, error)
	Create(ctx context.Context, n *domain.Notification) error
}

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Bookings() BookingRepository
}

type Store interface {
	Bookings() BookingRepository
	Areas() AreaRepository
	Settlements() SettlementRepository
	Notifications() NotificationRepository

	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
