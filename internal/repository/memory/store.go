// Package memory is an in-process Store. Every method runs under one mutex,
// so each conditional update is atomic like its SQL counterpart. RunTx does
// not provide rollback; it only groups calls.
package memory

import (
	"bytes"
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/spacebook/internal/domain"
	"github.com/kirinyoku/spacebook/internal/repository"
)

type Store struct {
	mu            sync.Mutex
	areas         map[uuid.UUID]domain.Area
	bookings      map[uuid.UUID]domain.Booking
	settlements   map[uuid.UUID][]domain.Settlement
	notifications []domain.Notification
}

func NewStore() *Store {
	return &Store{
		areas:       make(map[uuid.UUID]domain.Area),
		bookings:    make(map[uuid.UUID]domain.Booking),
		settlements: make(map[uuid.UUID][]domain.Settlement),
	}
}

// PutArea inserts or replaces an area.
func (s *Store) PutArea(a domain.Area) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.areas[a.ID] = a
}

// PutBooking inserts or replaces a booking without any checks.
func (s *Store) PutBooking(b domain.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
}

// AddSettlement records a payment row for a booking.
func (s *Store) AddSettlement(st domain.Settlement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlements[st.BookingID] = append(s.settlements[st.BookingID], st)
}

// NotificationsFor returns every notification recorded for a booking.
func (s *Store) NotificationsFor(bookingID uuid.UUID) []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Notification
	for _, n := range s.notifications {
		if n.BookingID == bookingID {
			out = append(out, n)
		}
	}
	return out
}

func (s *Store) Bookings() repository.BookingRepository           { return bookingRepo{s} }
func (s *Store) Areas() repository.AreaRepository                 { return areaRepo{s} }
func (s *Store) Settlements() repository.SettlementRepository     { return settlementRepo{s} }
func (s *Store) Notifications() repository.NotificationRepository { return notificationRepo{s} }

func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, s)
}

type areaRepo struct{ s *Store }

func (r areaRepo) Get(_ context.Context, id uuid.UUID) (*domain.Area, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.areas[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

type settlementRepo struct{ s *Store }

func (r settlementRepo) LatestSuccessful(_ context.Context, bookingID uuid.UUID) (*domain.Settlement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var latest *domain.Settlement
	for _, st := range r.s.settlements[bookingID] {
		if st.Status != domain.SettlementSucceeded {
			continue
		}
		if latest == nil || st.CreatedAt.After(latest.CreatedAt) {
			cp := st
			latest = &cp
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) Exists(_ context.Context, bookingID uuid.UUID, typ domain.NotificationType) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, n := range r.s.notifications {
		if n.BookingID == bookingID && n.Type == typ {
			return true, nil
		}
	}
	return false, nil
}

func (r notificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.notifications = append(r.s.notifications, *n)
	return nil
}

type bookingRepo struct{ s *Store }

func (r bookingRepo) Create(_ context.Context, b *domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.bookings[b.ID]; ok {
		return repository.ErrConflict
	}
	r.s.bookings[b.ID] = *b
	return nil
}

func (r bookingRepo) Get(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (r bookingRepo) CountActiveOverlap(_ context.Context, areaID uuid.UUID, w domain.Window, exclude uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	total := 0
	for _, b := range r.s.bookings {
		if b.AreaID != areaID || b.ID == exclude || !b.Status.IsActive() {
			continue
		}
		if b.Window.Overlaps(w) {
			total += b.GuestCount
		}
	}
	return total, nil
}

func (r bookingRepo) TryTransition(
	_ context.Context,
	id uuid.UUID,
	from []domain.BookingStatus,
	to domain.BookingStatus,
	at time.Time,
) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.s.transitionLocked(id, from, to, at), nil
}

func (r bookingRepo) TryTransitionMany(
	_ context.Context,
	ids []uuid.UUID,
	from []domain.BookingStatus,
	to domain.BookingStatus,
	at time.Time,
) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var moved []uuid.UUID
	for _, id := range ids {
		if r.s.transitionLocked(id, from, to, at) == 1 {
			moved = append(moved, id)
		}
	}
	return moved, nil
}

func (r bookingRepo) ExpirePending(_ context.Context, now, unpaidBefore time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var applied int64
	for id, b := range r.s.bookings {
		if b.Status != domain.StatusPending {
			continue
		}
		started := !b.Start.After(now)
		unpaid := b.CreatedAt.Before(unpaidBefore) && len(r.s.settlements[id]) == 0
		if started || unpaid {
			applied += r.s.transitionLocked(id, []domain.BookingStatus{domain.StatusPending}, domain.StatusExpired, now)
		}
	}
	return applied, nil
}

func (r bookingRepo) ListStalePaidPending(
	_ context.Context,
	createdAfter, createdBefore time.Time,
	after repository.Cursor,
	limit int,
) ([]domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []domain.Booking
	for id, b := range r.s.bookings {
		if b.Status != domain.StatusPending || b.CreatedAt.Before(createdAfter) || !b.CreatedAt.Before(createdBefore) {
			continue
		}
		if !after.Precedes(b.CreatedAt, id) {
			continue
		}
		if r.s.hasSucceededLocked(id) {
			out = append(out, b)
		}
	}

	sortByKey(out, func(b domain.Booking) time.Time { return b.CreatedAt })
	return truncate(out, limit), nil
}

func (r bookingRepo) ListStartingPaidPending(
	_ context.Context,
	from, until time.Time,
	after repository.Cursor,
	limit int,
) ([]domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []domain.Booking
	for id, b := range r.s.bookings {
		if b.Status != domain.StatusPending || b.Start.Before(from) || !b.Start.Before(until) {
			continue
		}
		if !after.Precedes(b.Start, id) {
			continue
		}
		if len(r.s.settlements[id]) > 0 {
			out = append(out, b)
		}
	}

	sortByKey(out, func(b domain.Booking) time.Time { return b.Start })
	return truncate(out, limit), nil
}

func (s *Store) transitionLocked(id uuid.UUID, from []domain.BookingStatus, to domain.BookingStatus, at time.Time) int64 {
	b, ok := s.bookings[id]
	if !ok || !slices.Contains(from, b.Status) {
		return 0
	}
	b.Status = to
	b.UpdatedAt = at
	s.bookings[id] = b
	return 1
}

func (s *Store) hasSucceededLocked(bookingID uuid.UUID) bool {
	for _, st := range s.settlements[bookingID] {
		if st.Status == domain.SettlementSucceeded {
			return true
		}
	}
	return false
}

// sortByKey orders by (key, id), matching the postgres keyset order.
func sortByKey(bs []domain.Booking, key func(domain.Booking) time.Time) {
	sort.Slice(bs, func(i, j int) bool {
		ki, kj := key(bs[i]), key(bs[j])
		if !ki.Equal(kj) {
			return ki.Before(kj)
		}
		return bytes.Compare(bs[i].ID[:], bs[j].ID[:]) < 0
	})
}

func truncate(bs []domain.Booking, limit int) []domain.Booking {
	if limit > 0 && len(bs) > limit {
		return bs[:limit]
	}
	return bs
}
