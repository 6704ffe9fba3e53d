package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/spacebook/internal/domain"
	"github.com/kirinyoku/spacebook/internal/repository"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func booking(area uuid.UUID, start, end time.Time, guests int, status domain.BookingStatus) domain.Booking {
	return domain.Booking{
		ID:         uuid.New(),
		AreaID:     area,
		Window:     domain.Window{Start: start, End: end},
		GuestCount: guests,
		Status:     status,
		CreatedAt:  t0.Add(-time.Hour),
	}
}

func TestCountActiveOverlap(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	area := uuid.New()

	morning := booking(area, t0, t0.Add(2*time.Hour), 3, domain.StatusConfirmed)
	afternoon := booking(area, t0.Add(2*time.Hour), t0.Add(4*time.Hour), 4, domain.StatusPending)
	checkedIn := booking(area, t0.Add(time.Hour), t0.Add(3*time.Hour), 2, domain.StatusCheckedIn)
	cancelled := booking(area, t0, t0.Add(4*time.Hour), 10, domain.StatusCancelled)
	otherArea := booking(uuid.New(), t0, t0.Add(4*time.Hour), 10, domain.StatusConfirmed)

	for _, b := range []domain.Booking{morning, afternoon, checkedIn, cancelled, otherArea} {
		s.PutBooking(b)
	}

	n, err := s.Bookings().CountActiveOverlap(ctx, area, domain.Window{Start: t0, End: t0.Add(time.Hour)}, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "only the morning booking overlaps the first hour")

	n, err = s.Bookings().CountActiveOverlap(ctx, area, domain.Window{Start: t0.Add(90 * time.Minute), End: t0.Add(150 * time.Minute)}, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	n, err = s.Bookings().CountActiveOverlap(ctx, area, domain.Window{Start: t0.Add(90 * time.Minute), End: t0.Add(150 * time.Minute)}, afternoon.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = s.Bookings().CountActiveOverlap(ctx, area, domain.Window{Start: t0.Add(5 * time.Hour), End: t0.Add(6 * time.Hour)}, uuid.Nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTryTransitionIsConditional(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	b := booking(uuid.New(), t0, t0.Add(time.Hour), 1, domain.StatusPending)
	s.PutBooking(b)

	from := []domain.BookingStatus{domain.StatusPending, domain.StatusConfirmed}

	n, err := s.Bookings().TryTransition(ctx, b.ID, from, domain.StatusCancelled, t0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.Bookings().TryTransition(ctx, b.ID, from, domain.StatusCancelled, t0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	n, err = s.Bookings().TryTransition(ctx, uuid.New(), from, domain.StatusCancelled, t0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestTryTransitionRaceHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	b := booking(uuid.New(), t0, t0.Add(time.Hour), 1, domain.StatusPending)
	s.PutBooking(b)

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := domain.StatusConfirmed
			if i%2 == 0 {
				to = domain.StatusExpired
			}
			n, err := s.Bookings().TryTransition(ctx, b.ID, []domain.BookingStatus{domain.StatusPending}, to, t0)
			if err == nil {
				wins.Add(n)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
}

func TestExpirePending(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	area := uuid.New()
	now := t0

	started := booking(area, now.Add(-time.Minute), now.Add(time.Hour), 1, domain.StatusPending)
	staleUnpaid := booking(area, now.Add(time.Hour), now.Add(2*time.Hour), 1, domain.StatusPending)
	staleUnpaid.CreatedAt = now.Add(-31 * time.Minute)
	freshUnpaid := booking(area, now.Add(time.Hour), now.Add(2*time.Hour), 1, domain.StatusPending)
	freshUnpaid.CreatedAt = now.Add(-29 * time.Minute)
	stalePaid := booking(area, now.Add(time.Hour), now.Add(2*time.Hour), 1, domain.StatusPending)
	stalePaid.CreatedAt = now.Add(-time.Hour)
	confirmedStarted := booking(area, now.Add(-time.Hour), now.Add(time.Hour), 1, domain.StatusConfirmed)

	for _, b := range []domain.Booking{started, staleUnpaid, freshUnpaid, stalePaid, confirmedStarted} {
		s.PutBooking(b)
	}
	s.AddSettlement(domain.Settlement{ID: uuid.New(), BookingID: stalePaid.ID, Status: domain.SettlementPending})

	n, err := s.Bookings().ExpirePending(ctx, now, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	status := func(id uuid.UUID) domain.BookingStatus {
		b, err := s.Bookings().Get(ctx, id)
		require.NoError(t, err)
		return b.Status
	}
	assert.Equal(t, domain.StatusExpired, status(started.ID))
	assert.Equal(t, domain.StatusExpired, status(staleUnpaid.ID))
	assert.Equal(t, domain.StatusPending, status(freshUnpaid.ID))
	assert.Equal(t, domain.StatusPending, status(stalePaid.ID))
	assert.Equal(t, domain.StatusConfirmed, status(confirmedStarted.ID))
}

func TestGetUnknown(t *testing.T) {
	_, err := NewStore().Bookings().Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = NewStore().Areas().Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListStalePaidPendingKeysetPaging(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	area := uuid.New()

	// two rows share created_at so the id breaks the tie
	var want []uuid.UUID
	for _, ago := range []time.Duration{40, 30, 30, 20} {
		b := booking(area, t0.Add(time.Hour), t0.Add(2*time.Hour), 1, domain.StatusPending)
		b.CreatedAt = t0.Add(-ago * time.Minute)
		s.PutBooking(b)
		s.AddSettlement(domain.Settlement{ID: uuid.New(), BookingID: b.ID, Status: domain.SettlementSucceeded})
		want = append(want, b.ID)
	}

	var (
		got []uuid.UUID
		cur repository.Cursor
	)
	for {
		page, err := s.Bookings().ListStalePaidPending(ctx, t0.Add(-time.Hour), t0, cur, 3)
		require.NoError(t, err)
		for _, b := range page {
			got = append(got, b.ID)
		}
		if len(page) < 3 {
			break
		}
		last := page[len(page)-1]
		cur = repository.Cursor{Key: last.CreatedAt, ID: last.ID}
	}

	assert.ElementsMatch(t, want, got)
	assert.Len(t, got, 4, "no row is returned twice")
}
