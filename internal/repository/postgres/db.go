package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/spacebook/internal/repository"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTx runs fn in a read-committed transaction. Capacity is not protected
// by isolation level: admission accepts a bounded window of overbooking and
// every status write is a conditional update anyway.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return translateDBErr(err)
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, &txRepos{pool: s.pool, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translateDBErr(err))
	}

	return nil
}

func (s *Store) Bookings() repository.BookingRepository { return &BookingRepo{pool: s.pool} }
func (s *Store) Areas() repository.AreaRepository       { return &AreaRepo{pool: s.pool} }
func (s *Store) Settlements() repository.SettlementRepository {
	return &SettlementRepo{pool: s.pool}
}
func (s *Store) Notifications() repository.NotificationRepository {
	return &NotificationRepo{pool: s.pool}
}

type txRepos struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (t *txRepos) Bookings() repository.BookingRepository {
	return (&BookingRepo{pool: t.pool}).With(t.tx)
}
