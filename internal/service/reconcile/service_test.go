package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/spacebook/internal/domain"
	"github.com/kirinyoku/spacebook/internal/repository"
	"github.com/kirinyoku/spacebook/internal/repository/memory"
)

var now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	store   *memory.Store
	svc     *Service
	areaID  uuid.UUID
	partner uuid.UUID
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &env{
		store:   store,
		svc:     New(store, nil, nil, logger, Config{}),
		areaID:  uuid.New(),
		partner: uuid.New(),
	}
}

type seedOpts struct {
	status     domain.BookingStatus
	createdAgo time.Duration
	startsIn   time.Duration
	length     time.Duration
	guests     int
	capacity   *int
	payment    domain.SettlementStatus
}

func (e *env) seed(o seedOpts) domain.Booking {
	if o.status == "" {
		o.status = domain.StatusPending
	}
	if o.length == 0 {
		o.length = 2 * time.Hour
	}
	if o.guests == 0 {
		o.guests = 1
	}

	partner := e.partner
	start := now.Add(o.startsIn)
	b := domain.Booking{
		ID:              uuid.New(),
		AreaID:          e.areaID,
		CustomerID:      uuid.New(),
		PartnerID:       &partner,
		Window:          domain.Window{Start: start, End: start.Add(o.length)},
		GuestCount:      o.guests,
		AreaMaxCapacity: o.capacity,
		Status:          o.status,
		CreatedAt:       now.Add(-o.createdAgo),
		UpdatedAt:       now.Add(-o.createdAgo),
	}
	e.store.PutBooking(b)

	if o.payment != "" {
		e.store.AddSettlement(domain.Settlement{
			ID:        uuid.New(),
			BookingID: b.ID,
			Status:    o.payment,
			CreatedAt: b.CreatedAt,
		})
	}

	return b
}

func (e *env) status(t *testing.T, id uuid.UUID) domain.BookingStatus {
	t.Helper()
	b, err := e.store.Bookings().Get(context.Background(), id)
	require.NoError(t, err)
	return b.Status
}

func capacity(n int) *int { return &n }

// flakyStore fails occupancy reads for one booking.
type flakyStore struct {
	*memory.Store
	failFor uuid.UUID
}

func (s flakyStore) Bookings() repository.BookingRepository {
	return flakyBookings{BookingRepository: s.Store.Bookings(), failFor: s.failFor}
}

type flakyBookings struct {
	repository.BookingRepository
	failFor uuid.UUID
}

func (f flakyBookings) CountActiveOverlap(
	ctx context.Context,
	areaID uuid.UUID,
	w domain.Window,
	exclude uuid.UUID,
) (int, error) {
	if exclude == f.failFor {
		return 0, errors.New("connection reset by peer")
	}
	return f.BookingRepository.CountActiveOverlap(ctx, areaID, w, exclude)
}

func (e *env) withFailureFor(id uuid.UUID, cfg Config) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e.svc = New(flakyStore{Store: e.store, failFor: id}, nil, nil, logger, cfg)
}

func TestUnpaidExpiryThreshold(t *testing.T) {
	e := newEnv(t)

	stale := e.seed(seedOpts{createdAgo: 31 * time.Minute, startsIn: 2 * time.Hour})
	fresh := e.seed(seedOpts{createdAgo: 29 * time.Minute, startsIn: 2 * time.Hour})

	res, err := e.svc.Reconcile(context.Background(), now)
	require.NoError(t, err)

	assert.EqualValues(t, 1, res.Expired)
	assert.Equal(t, domain.StatusExpired, e.status(t, stale.ID))
	assert.Equal(t, domain.StatusPending, e.status(t, fresh.ID))
}

func TestExpiresPastStartEvenWhenPaid(t *testing.T) {
	e := newEnv(t)

	started := e.seed(seedOpts{
		createdAgo: 5 * time.Minute,
		startsIn:   -time.Minute,
		payment:    domain.SettlementPending,
	})
	// A failed capture still counts as a settlement record.
	failed := e.seed(seedOpts{
		createdAgo: 45 * time.Minute,
		startsIn:   time.Hour,
		payment:    domain.SettlementFailed,
	})

	res, err := e.svc.Reconcile(context.Background(), now)
	require.NoError(t, err)

	assert.EqualValues(t, 1, res.Expired)
	assert.Equal(t, domain.StatusExpired, e.status(t, started.ID))
	assert.Equal(t, domain.StatusPending, e.status(t, failed.ID))
}

func TestAutoConfirmStalePaid(t *testing.T) {
	e := newEnv(t)

	fits := e.seed(seedOpts{
		createdAgo: 11 * time.Minute,
		startsIn:   3 * time.Hour,
		guests:     2,
		capacity:   capacity(4),
		payment:    domain.SettlementSucceeded,
	})
	tooRecent := e.seed(seedOpts{
		createdAgo: 9 * time.Minute,
		startsIn:   3 * time.Hour,
		guests:     1,
		capacity:   capacity(4),
		payment:    domain.SettlementSucceeded,
	})
	unsettled := e.seed(seedOpts{
		createdAgo: 11 * time.Minute,
		startsIn:   3 * time.Hour,
		guests:     1,
		capacity:   capacity(4),
		payment:    domain.SettlementPending,
	})

	res, err := e.svc.Reconcile(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, res.AutoConfirmed)
	assert.Equal(t, domain.StatusConfirmed, e.status(t, fits.ID))
	assert.Equal(t, domain.StatusPending, e.status(t, tooRecent.ID))
	assert.Equal(t, domain.StatusPending, e.status(t, unsettled.ID))

	types := map[domain.NotificationType]bool{}
	for _, n := range e.store.NotificationsFor(fits.ID) {
		types[n.Type] = true
	}
	assert.True(t, types[domain.NotifyBookingConfirmed])
	assert.True(t, types[domain.NotifyBookingNew])
}

func TestAutoConfirmLeavesOverCapacityPending(t *testing.T) {
	e := newEnv(t)

	e.seed(seedOpts{
		status:     domain.StatusConfirmed,
		createdAgo: time.Hour,
		startsIn:   3 * time.Hour,
		guests:     3,
		capacity:   capacity(4),
	})
	held := e.seed(seedOpts{
		createdAgo: 20 * time.Minute,
		startsIn:   4 * time.Hour,
		guests:     2,
		capacity:   capacity(4),
		payment:    domain.SettlementSucceeded,
	})

	res, err := e.svc.Reconcile(context.Background(), now)
	require.NoError(t, err)

	assert.Zero(t, res.AutoConfirmed)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, domain.StatusPending, e.status(t, held.ID))
}

func TestCapacityWarningNearStart(t *testing.T) {
	e := newEnv(t)

	e.seed(seedOpts{
		status:     domain.StatusConfirmed,
		createdAgo: time.Hour,
		startsIn:   -time.Hour,
		length:     3 * time.Hour,
		guests:     4,
		capacity:   capacity(4),
	})
	conflict := e.seed(seedOpts{
		createdAgo: 5 * time.Minute,
		startsIn:   10 * time.Minute,
		guests:     1,
		capacity:   capacity(4),
		payment:    domain.SettlementPending,
	})
	later := e.seed(seedOpts{
		createdAgo: 5 * time.Minute,
		startsIn:   20 * time.Minute,
		guests:     1,
		capacity:   capacity(4),
		payment:    domain.SettlementPending,
	})

	res, err := e.svc.Reconcile(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, res.CapacityWarnings)
	assert.Equal(t, domain.StatusPending, e.status(t, conflict.ID), "warnings never change status")

	recipients := map[domain.NotificationType]uuid.UUID{}
	for _, n := range e.store.NotificationsFor(conflict.ID) {
		recipients[n.Type] = n.RecipientID
	}
	assert.Equal(t, conflict.CustomerID, recipients[domain.NotifyCapacityWarningCustomer])
	assert.Equal(t, e.partner, recipients[domain.NotifyCapacityWarningPartner])
	assert.Empty(t, e.store.NotificationsFor(later.ID))

	res, err = e.svc.Reconcile(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, res.CapacityWarnings, "warnings are recorded once")
	assert.Len(t, e.store.NotificationsFor(conflict.ID), 2)
}

func TestReconcileIsIdempotent(t *testing.T) {
	e := newEnv(t)

	e.seed(seedOpts{createdAgo: 40 * time.Minute, startsIn: time.Hour})
	e.seed(seedOpts{
		createdAgo: 15 * time.Minute,
		startsIn:   2 * time.Hour,
		capacity:   capacity(10),
		payment:    domain.SettlementSucceeded,
	})
	e.seed(seedOpts{createdAgo: time.Minute, startsIn: -time.Minute})

	first, err := e.svc.Reconcile(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, first.AutoConfirmed)
	assert.EqualValues(t, 2, first.Expired)

	second, err := e.svc.Reconcile(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Result{}, second)
}

func TestConfigDefaults(t *testing.T) {
	c := Config{Lookback: time.Minute}.withDefaults()

	assert.Equal(t, 10*time.Minute, c.AutoConfirmAfter)
	assert.Equal(t, 15*time.Minute, c.WarningHorizon)
	assert.Equal(t, 30*time.Minute, c.UnpaidExpiryAfter)
	assert.Equal(t, 24*time.Hour, c.Lookback, "lookback shorter than staleness is widened")
	assert.Equal(t, 200, c.BatchSize)
}

func TestAutoConfirmPagesPastBlockedBookings(t *testing.T) {
	e := newEnv(t)
	e.svc = New(e.store, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{BatchSize: 2})

	e.seed(seedOpts{
		status:     domain.StatusConfirmed,
		createdAgo: 2 * time.Hour,
		startsIn:   2 * time.Hour,
		capacity:   capacity(1),
	})
	var blocked []domain.Booking
	for i := range 3 {
		blocked = append(blocked, e.seed(seedOpts{
			createdAgo: time.Duration(50-i) * time.Minute,
			startsIn:   2 * time.Hour,
			capacity:   capacity(1),
			payment:    domain.SettlementSucceeded,
		}))
	}
	fits := e.seed(seedOpts{
		createdAgo: 20 * time.Minute,
		startsIn:   6 * time.Hour,
		capacity:   capacity(1),
		payment:    domain.SettlementSucceeded,
	})

	res, err := e.svc.Reconcile(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, res.AutoConfirmed)
	assert.Equal(t, domain.StatusConfirmed, e.status(t, fits.ID))
	for _, b := range blocked {
		assert.Equal(t, domain.StatusPending, e.status(t, b.ID))
	}
}

func TestCapacityWarningsPageThroughCandidates(t *testing.T) {
	e := newEnv(t)
	e.svc = New(e.store, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{BatchSize: 1})

	e.seed(seedOpts{
		status:     domain.StatusConfirmed,
		createdAgo: time.Hour,
		startsIn:   -time.Hour,
		length:     3 * time.Hour,
		capacity:   capacity(1),
	})
	for i := range 3 {
		e.seed(seedOpts{
			createdAgo: 5 * time.Minute,
			startsIn:   time.Duration(5+i) * time.Minute,
			capacity:   capacity(1),
			payment:    domain.SettlementPending,
		})
	}

	res, err := e.svc.Reconcile(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, res.CapacityWarnings)
}

func TestAutoConfirmSkipsFailingBooking(t *testing.T) {
	e := newEnv(t)

	broken := e.seed(seedOpts{
		createdAgo: 15 * time.Minute,
		startsIn:   2 * time.Hour,
		capacity:   capacity(10),
		payment:    domain.SettlementSucceeded,
	})
	healthy := e.seed(seedOpts{
		createdAgo: 14 * time.Minute,
		startsIn:   2 * time.Hour,
		capacity:   capacity(10),
		payment:    domain.SettlementSucceeded,
	})
	e.withFailureFor(broken.ID, Config{})

	res, err := e.svc.Reconcile(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, res.AutoConfirmed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, domain.StatusConfirmed, e.status(t, healthy.ID))
	assert.Equal(t, domain.StatusPending, e.status(t, broken.ID))
}

func TestCapacityWarningSkipsFailingBooking(t *testing.T) {
	e := newEnv(t)

	e.seed(seedOpts{
		status:     domain.StatusConfirmed,
		createdAgo: time.Hour,
		startsIn:   -time.Hour,
		length:     3 * time.Hour,
		capacity:   capacity(1),
	})
	broken := e.seed(seedOpts{
		createdAgo: 5 * time.Minute,
		startsIn:   5 * time.Minute,
		capacity:   capacity(1),
		payment:    domain.SettlementPending,
	})
	healthy := e.seed(seedOpts{
		createdAgo: 5 * time.Minute,
		startsIn:   10 * time.Minute,
		capacity:   capacity(1),
		payment:    domain.SettlementPending,
	})
	e.withFailureFor(broken.ID, Config{})

	res, err := e.svc.Reconcile(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, res.CapacityWarnings)
	assert.Equal(t, 1, res.Skipped)
	assert.NotEmpty(t, e.store.NotificationsFor(healthy.ID))
	assert.Empty(t, e.store.NotificationsFor(broken.ID))
}
