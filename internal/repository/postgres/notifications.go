package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/spacebook/internal/domain"
)

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func (r *NotificationRepo) Exists(ctx context.Context, bookingID uuid.UUID, typ domain.NotificationType) (bool, error) {
	const op = "postgres.NotificationRepo.Exists"

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM notifications WHERE booking_id = $1 AND type = $2
		 )`,
		bookingID, string(typ),
	).Scan(&exists)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return exists, nil
}

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	const op = "postgres.NotificationRepo.Create"

	_, err := r.pool.Exec(ctx,
		`INSERT INTO notifications(id, recipient_id, type, booking_id, title, body, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.RecipientID, string(n.Type), n.BookingID, n.Title, n.Body, n.CreatedAt,
	)

	return wrapDBErr(op, err)
}
