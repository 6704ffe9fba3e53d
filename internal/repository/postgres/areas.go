package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/spacebook/internal/domain"
)

type AreaRepo struct {
	pool *pgxpool.Pool
}

// Get reads the capacity configuration of an area.
//
// Returns:
//   - error: repository.ErrNotFound if the area does not exist.
func (r *AreaRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Area, error) {
	const op = "postgres.AreaRepo.Get"

	var a domain.Area
	err := r.pool.QueryRow(ctx,
		`SELECT id, space_id, partner_id, max_capacity,
		        automatic_booking_enabled, request_approval_at_capacity
		 FROM areas WHERE id = $1`,
		id,
	).Scan(
		&a.ID,
		&a.SpaceID,
		&a.PartnerID,
		&a.MaxCapacity,
		&a.AutomaticBookingEnabled,
		&a.RequestApprovalAtCapacity,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &a, nil
}
