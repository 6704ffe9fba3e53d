package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/spacebook/internal/domain"
	"github.com/kirinyoku/spacebook/internal/repository"
)

const bookingColumns = `b.id, b.space_id, b.area_id, b.customer_id, b.partner_id,
	b.start_at, b.expires_at, b.guest_count, b.area_max_capacity,
	b.status, b.decision, b.created_at, b.updated_at`

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a booking with whatever status admission produced.
//
// Returns:
//   - error: repository.ErrConflict if a booking with the same id exists.
func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	const op = "postgres.BookingRepo.Create"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO bookings(id, space_id, area_id, customer_id, partner_id,
		                      start_at, expires_at, guest_count, area_max_capacity,
		                      status, decision, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		b.ID, b.SpaceID, b.AreaID, b.CustomerID, b.PartnerID,
		b.Start, b.End, b.GuestCount, b.AreaMaxCapacity,
		string(b.Status), string(b.Decision), b.CreatedAt, b.UpdatedAt,
	)

	return wrapDBErr(op, err)
}

// Get retrieves a booking by its ID.
//
// Returns:
//   - error: repository.ErrNotFound if the booking does not exist.
func (r *BookingRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Get"

	db := r.handle()

	b, err := scanBooking(db.QueryRow(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings b
		 WHERE b.id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

// CountActiveOverlap sums guests of active bookings overlapping w.
//
// Parameters:
//   - areaID: area whose capacity is being consumed.
//   - w: half-open window; a booking overlaps iff start_at < w.End and expires_at > w.Start.
//   - exclude: booking left out of the sum, or uuid.Nil.
func (r *BookingRepo) CountActiveOverlap(
	ctx context.Context,
	areaID uuid.UUID,
	w domain.Window,
	exclude uuid.UUID,
) (int, error) {
	const op = "postgres.BookingRepo.CountActiveOverlap"

	db := r.handle()

	var excludeArg any
	if exclude != uuid.Nil {
		excludeArg = exclude
	}

	var total int64
	err := db.QueryRow(ctx,
		`SELECT COALESCE(SUM(b.guest_count), 0)
		 FROM bookings b
		 WHERE b.area_id = $1
		   AND b.status = ANY($2)
		   AND b.start_at < $4
		   AND b.expires_at > $3
		   AND ($5::uuid IS NULL OR b.id <> $5::uuid)`,
		areaID, domain.StatusStrings(domain.ActiveStatuses), w.Start, w.End, excludeArg,
	).Scan(&total)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return int(total), nil
}

// TryTransition is the single-row conditional status update.
func (r *BookingRepo) TryTransition(
	ctx context.Context,
	id uuid.UUID,
	from []domain.BookingStatus,
	to domain.BookingStatus,
	at time.Time,
) (int64, error) {
	const op = "postgres.BookingRepo.TryTransition"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE bookings
		 SET status = $3, updated_at = $4
		 WHERE id = $1 AND status = ANY($2)`,
		id, domain.StatusStrings(from), string(to), at,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

func (r *BookingRepo) TryTransitionMany(
	ctx context.Context,
	ids []uuid.UUID,
	from []domain.BookingStatus,
	to domain.BookingStatus,
	at time.Time,
) ([]uuid.UUID, error) {
	const op = "postgres.BookingRepo.TryTransitionMany"

	if len(ids) == 0 {
		return nil, nil
	}

	db := r.handle()

	rows, err := db.Query(ctx,
		`UPDATE bookings
		 SET status = $3, updated_at = $4
		 WHERE id = ANY($1::uuid[]) AND status = ANY($2)
		 RETURNING id`,
		ids, domain.StatusStrings(from), string(to), at,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var moved []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBErr(op, err)
		}
		moved = append(moved, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return moved, nil
}

// ExpirePending expires pending bookings that already started, or that are
// older than unpaidBefore without any settlement row.
func (r *BookingRepo) ExpirePending(ctx context.Context, now, unpaidBefore time.Time) (int64, error) {
	const op = "postgres.BookingRepo.ExpirePending"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE bookings b
		 SET status = 'expired', updated_at = $1
		 WHERE b.status = 'pending'
		   AND (
		         b.start_at <= $1
		      OR (b.created_at < $2
		          AND NOT EXISTS (SELECT 1 FROM transactions t WHERE t.booking_id = b.id))
		   )`,
		now, unpaidBefore,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

func (r *BookingRepo) ListStalePaidPending(
	ctx context.Context,
	createdAfter, createdBefore time.Time,
	after repository.Cursor,
	limit int,
) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListStalePaidPending"

	return r.list(ctx, op,
		`SELECT `+bookingColumns+`
		 FROM bookings b
		 WHERE b.status = 'pending'
		   AND b.created_at >= $1
		   AND b.created_at < $2
		   AND EXISTS (
		         SELECT 1 FROM transactions t
		         WHERE t.booking_id = b.id AND t.status = 'succeeded'
		   )
		   AND (NOT $3 OR (b.created_at, b.id) > ($4::timestamptz, $5::uuid))
		 ORDER BY b.created_at, b.id
		 LIMIT $6`,
		createdAfter, createdBefore, !after.IsZero(), after.Key, after.ID, limit,
	)
}

func (r *BookingRepo) ListStartingPaidPending(
	ctx context.Context,
	from, until time.Time,
	after repository.Cursor,
	limit int,
) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListStartingPaidPending"

	return r.list(ctx, op,
		`SELECT `+bookingColumns+`
		 FROM bookings b
		 WHERE b.status = 'pending'
		   AND b.start_at >= $1
		   AND b.start_at < $2
		   AND EXISTS (SELECT 1 FROM transactions t WHERE t.booking_id = b.id)
		   AND (NOT $3 OR (b.start_at, b.id) > ($4::timestamptz, $5::uuid))
		 ORDER BY b.start_at, b.id
		 LIMIT $6`,
		from, until, !after.IsZero(), after.Key, after.ID, limit,
	)
}

func (r *BookingRepo) list(ctx context.Context, op, sql string, args ...any) ([]domain.Booking, error) {
	db := r.handle()

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(row scanner) (*domain.Booking, error) {
	var (
		b        domain.Booking
		status   string
		decision string
	)

	if err := row.Scan(
		&b.ID,
		&b.SpaceID,
		&b.AreaID,
		&b.CustomerID,
		&b.PartnerID,
		&b.Start,
		&b.End,
		&b.GuestCount,
		&b.AreaMaxCapacity,
		&status,
		&decision,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}

	st, err := domain.ParseBookingStatus(status)
	if err != nil {
		return nil, err
	}

	b.Status = st
	b.Decision = domain.DecisionKind(decision)

	return &b, nil
}
