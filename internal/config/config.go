package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Server      ServerConfig
	StoreDriver string
	Postgres    PostgresConfig
	Redis       RedisConfig
	Booking     BookingConfig
	Reconcile   ReconcileConfig
	AMQP        AMQPConfig
	Stripe      StripeConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	// Addr empty disables caching, rate limiting, idempotency and pubsub.
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32

	StatementTimeout time.Duration
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

type BookingConfig struct {
	RateLimit    int
	RateWindow   time.Duration
	AreaCacheTTL time.Duration
	IdemTTL      time.Duration
}

type ReconcileConfig struct {
	// Interval 0 disables the in-process scheduler.
	Interval          time.Duration
	Secret            string
	AutoConfirmAfter  time.Duration
	WarningHorizon    time.Duration
	UnpaidExpiryAfter time.Duration
	Lookback          time.Duration
	BatchSize         int
}

type AMQPConfig struct {
	// URL empty keeps notifications in the log only.
	URL   string
	Queue string
}

type StripeConfig struct {
	// SecretKey empty disables refunds.
	SecretKey string
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverHost := os.Getenv("SERVER_HOST")
	if serverHost == "" {
		serverHost = "localhost"
	}

	serverPort, err := envInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: serverHost,
		Port: serverPort,
	}

	storeDriver := os.Getenv("STORE_DRIVER")
	if storeDriver == "" {
		storeDriver = StoreDriverPostgres
	}
	if storeDriver != StoreDriverPostgres && storeDriver != StoreDriverMemory {
		return nil, fmt.Errorf("%s: invalid STORE_DRIVER %q", op, storeDriver)
	}

	var postgresCfg PostgresConfig
	if storeDriver == StoreDriverPostgres {
		postgresCfg, err = loadPostgres()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	redisDB, err := envInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisCfg := RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	bookingCfg, err := loadBooking()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	reconcileCfg, err := loadReconcile()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Config{
		Server:      serverCfg,
		StoreDriver: storeDriver,
		Postgres:    postgresCfg,
		Redis:       redisCfg,
		Booking:     bookingCfg,
		Reconcile:   reconcileCfg,
		AMQP: AMQPConfig{
			URL:   os.Getenv("AMQP_URL"),
			Queue: os.Getenv("NOTIFY_QUEUE"),
		},
		Stripe: StripeConfig{
			SecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		},
	}, nil
}

func loadPostgres() (PostgresConfig, error) {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}

	port, err := envInt("POSTGRES_PORT", 5432)
	if err != nil {
		return PostgresConfig{}, err
	}

	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		return PostgresConfig{}, fmt.Errorf("missing POSTGRES_USER")
	}

	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		return PostgresConfig{}, fmt.Errorf("missing POSTGRES_PASSWORD")
	}

	name := os.Getenv("POSTGRES_DB")
	if name == "" {
		return PostgresConfig{}, fmt.Errorf("missing POSTGRES_DB")
	}

	sslMode := os.Getenv("POSTGRES_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}

	maxConns, err := envInt("POSTGRES_MAX_CONNS", 0)
	if err != nil {
		return PostgresConfig{}, err
	}

	stmtTimeout, err := envDuration("POSTGRES_STATEMENT_TIMEOUT", 5*time.Second)
	if err != nil {
		return PostgresConfig{}, err
	}

	return PostgresConfig{
		User:             user,
		Password:         password,
		Name:             name,
		Host:             host,
		Port:             port,
		SSLMode:          sslMode,
		MaxConns:         int32(maxConns),
		StatementTimeout: stmtTimeout,
	}, nil
}

func loadBooking() (BookingConfig, error) {
	var (
		c   BookingConfig
		err error
	)

	if c.RateLimit, err = envInt("BOOKING_RATE_LIMIT", 10); err != nil {
		return c, err
	}
	if c.RateWindow, err = envDuration("BOOKING_RATE_WINDOW", time.Minute); err != nil {
		return c, err
	}
	if c.AreaCacheTTL, err = envDuration("AREA_CACHE_TTL", 30*time.Second); err != nil {
		return c, err
	}
	if c.IdemTTL, err = envDuration("IDEMPOTENCY_TTL", 2*time.Hour); err != nil {
		return c, err
	}

	return c, nil
}

func loadReconcile() (ReconcileConfig, error) {
	var (
		c   ReconcileConfig
		err error
	)

	c.Secret = os.Getenv("RECONCILE_SECRET")

	if c.Interval, err = envDuration("RECONCILE_INTERVAL", 5*time.Minute); err != nil {
		return c, err
	}
	if c.AutoConfirmAfter, err = envDuration("RECONCILE_AUTO_CONFIRM_AFTER", 10*time.Minute); err != nil {
		return c, err
	}
	if c.WarningHorizon, err = envDuration("RECONCILE_WARNING_HORIZON", 15*time.Minute); err != nil {
		return c, err
	}
	if c.UnpaidExpiryAfter, err = envDuration("RECONCILE_UNPAID_EXPIRY_AFTER", 30*time.Minute); err != nil {
		return c, err
	}
	if c.Lookback, err = envDuration("RECONCILE_LOOKBACK", 24*time.Hour); err != nil {
		return c, err
	}
	if c.BatchSize, err = envInt("RECONCILE_BATCH_SIZE", 200); err != nil {
		return c, err
	}

	return c, nil
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration", key)
	}

	return d, nil
}
