package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/spacebook/internal/domain"
)

// SettlementRepo reads the payment records written by the gateway integration.
type SettlementRepo struct {
	pool *pgxpool.Pool
}

func (r *SettlementRepo) LatestSuccessful(ctx context.Context, bookingID uuid.UUID) (*domain.Settlement, error) {
	const op = "postgres.SettlementRepo.LatestSuccessful"

	var (
		s      domain.Settlement
		status string
	)

	err := r.pool.QueryRow(ctx,
		`SELECT id, booking_id, reference, amount_cents, currency, status, created_at
		 FROM transactions
		 WHERE booking_id = $1 AND status = 'succeeded'
		 ORDER BY created_at DESC
		 LIMIT 1`,
		bookingID,
	).Scan(&s.ID, &s.BookingID, &s.Reference, &s.AmountCents, &s.Currency, &status, &s.CreatedAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	s.Status = domain.SettlementStatus(status)

	return &s, nil
}
