package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/spacebook/internal/config"
	"github.com/kirinyoku/spacebook/internal/payment"
	"github.com/kirinyoku/spacebook/internal/postgres"
	"github.com/kirinyoku/spacebook/internal/queue"
	"github.com/kirinyoku/spacebook/internal/redis"
	"github.com/kirinyoku/spacebook/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/spacebook/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/spacebook/internal/repository/redis"
	"github.com/kirinyoku/spacebook/internal/scheduler"
	"github.com/kirinyoku/spacebook/internal/service"
	"github.com/kirinyoku/spacebook/internal/service/reconcile"
	httpgin "github.com/kirinyoku/spacebook/internal/transport/http/gin"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	scheduler  *scheduler.Scheduler
	closers    []io.Closer
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	deps := service.Deps{Logger: logger}

	// Initialize store
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		deps.Store = memory.NewStore()
	default:
		pgxPool, err := postgres.New(context.Background(), postgres.Config{
			DSN:              cfg.Postgres.DSN(),
			MaxConns:         cfg.Postgres.MaxConns,
			StatementTimeout: cfg.Postgres.StatementTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		a.closers = append(a.closers, closerFunc(func() error { pgxPool.Close(); return nil }))

		deps.Store = postgresrepo.NewStore(pgxPool)
		deps.Retryable = postgresrepo.IsRetryable
	}

	// Initialize redis-backed helpers
	var idem httpgin.IdempotencyStore
	if cfg.Redis.Addr != "" {
		rdb, err := redis.New(context.Background(), redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, rdb)

		wireRedis(&deps, rdb, cfg.Booking)
		idem = redisrepo.NewIdempotencyStore(rdb, cfg.Booking.IdemTTL)
	}

	// Initialize outbound adapters
	if cfg.AMQP.URL != "" {
		pub, err := queue.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize amqp publisher: %w", err)
		}
		a.closers = append(a.closers, pub)
		deps.Sink = pub
	}

	if cfg.Stripe.SecretKey != "" {
		deps.Refunds = payment.NewStripeRefunder(cfg.Stripe.SecretKey)
	}

	// Initialize services
	services := service.NewServices(deps, service.Config{
		Reconcile: reconcile.Config{
			AutoConfirmAfter:  cfg.Reconcile.AutoConfirmAfter,
			WarningHorizon:    cfg.Reconcile.WarningHorizon,
			UnpaidExpiryAfter: cfg.Reconcile.UnpaidExpiryAfter,
			Lookback:          cfg.Reconcile.Lookback,
			BatchSize:         cfg.Reconcile.BatchSize,
		},
	})

	if cfg.Reconcile.Interval > 0 {
		s, err := scheduler.New(services.Reconcile, cfg.Reconcile.Interval, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
		}
		a.scheduler = s
	}

	// Initialize Gin router
	router := httpgin.NewRouter(services, httpgin.Options{
		Idem:            idem,
		ReconcileSecret: cfg.Reconcile.Secret,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func wireRedis(deps *service.Deps, rdb *goredis.Client, cfg config.BookingConfig) {
	cache := redisrepo.New(rdb)
	deps.Areas = redisrepo.NewCachedAreas(deps.Store.Areas(), cache, cfg.AreaCacheTTL)
	deps.Events = redisrepo.NewBookingsPubSub(rdb)
	if cfg.RateLimit > 0 {
		deps.Limiter = redisrepo.NewSlidingWindowLimiter(rdb, "bookings", cfg.RateLimit, cfg.RateWindow)
	}
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Reconciliation trigger
	if a.scheduler != nil {
		g.Go(func() error {
			return a.scheduler.Run(gCtx)
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close resource", "error", err)
		}
	}
	a.closers = nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
