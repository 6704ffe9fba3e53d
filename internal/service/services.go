package service

import (
	"log/slog"

	"github.com/kirinyoku/spacebook/internal/repository"
	"github.com/kirinyoku/spacebook/internal/service/booking"
	"github.com/kirinyoku/spacebook/internal/service/notify"
	"github.com/kirinyoku/spacebook/internal/service/reconcile"
	"github.com/kirinyoku/spacebook/internal/uow"
)

type Services struct {
	Booking   *booking.Service
	Reconcile *reconcile.Service
}

type Config struct {
	Reconcile reconcile.Config
	// TxAttempts bounds reruns of a unit of work that failed with a
	// retryable store error.
	TxAttempts int
}

// Deps are the collaborators shared by the services. Everything except
// Store and Logger is optional.
type Deps struct {
	Store     repository.Store
	Areas     repository.AreaRepository
	Retryable func(error) bool
	Sink      notify.Sink
	Refunds   booking.Refunder
	Events    booking.EventPublisher
	Limiter   booking.RateLimiter
	Logger    *slog.Logger
}

func NewServices(d Deps, cfg Config) *Services {
	sink := d.Sink
	if sink == nil {
		sink = notify.LogSink{Logger: d.Logger}
	}
	notifier := notify.New(d.Store.Notifications(), sink, d.Logger)

	var opts []uow.Option
	if d.Retryable != nil {
		attempts := cfg.TxAttempts
		if attempts <= 0 {
			attempts = 3
		}
		opts = append(opts, uow.WithRetry(d.Retryable, attempts))
	}

	return &Services{
		Booking: booking.New(booking.Deps{
			Store:   d.Store,
			Areas:   d.Areas,
			UoW:     uow.NewUoW(d.Store, opts...),
			Notify:  notifier,
			Refunds: d.Refunds,
			Events:  d.Events,
			Limiter: d.Limiter,
			Logger:  d.Logger,
		}),
		Reconcile: reconcile.New(d.Store, notifier, d.Events, d.Logger, cfg.Reconcile),
	}
}
