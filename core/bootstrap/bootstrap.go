// Package bootstrap brings up shared infrastructure in a fixed order:
// logger, migrations, database pool, redis, then seeders.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/membo/vtubot/core/config"
	"github.com/membo/vtubot/core/database"
	"github.com/membo/vtubot/core/logger"
)

const redisPingTimeout = 5 * time.Second

// Options control the bootstrap pipeline. Nil hooks use the package defaults.
type Options struct {
	Config *config.Config

	LoggerInit   func(*config.Config) error
	Migrate      func(context.Context, config.DatabaseConfig) error
	Connect      func(context.Context, config.DatabaseConfig) (*sqlx.DB, error)
	ConnectRedis func(context.Context, config.RedisConfig) (redis.UniversalClient, error)
}

// Result exposes infrastructure initialized by the pipeline.
type Result struct {
	DB *sqlx.DB
	// Redis is nil when no address is configured.
	Redis redis.UniversalClient
}

// Close releases the database and redis connections.
func (r *Result) Close() error {
	var errs []error
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	if r.DB != nil {
		errs = append(errs, r.DB.Close())
	}
	return errors.Join(errs...)
}

// Run initializes the logger, applies migrations, connects to the database and redis.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = database.RunMigrations
	}
	if err := migrate(ctx, cfg.Database); err != nil {
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = database.Connect
	}
	db, err := connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	res := &Result{DB: db}

	if cfg.Redis.Addr == "" {
		logger.L.Info("redis disabled, using in-process session locks",
			slog.String("event", "redis.connect"),
			slog.String("status", "skipped"),
		)
		return res, nil
	}
	connectRedis := opts.ConnectRedis
	if connectRedis == nil {
		connectRedis = ConnectRedis
	}
	client, err := connectRedis(ctx, cfg.Redis)
	if err != nil {
		_ = res.Close()
		return nil, fmt.Errorf("bootstrap: redis initialization failed: %w", err)
	}
	res.Redis = client
	return res, nil
}

// ConnectRedis dials redis and verifies it answers a ping.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	start := time.Now()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.L.Info("redis connected",
		slog.String("event", "redis.connect"),
		slog.String("status", "ok"),
		slog.Duration("duration", logger.Took(start)),
	)
	return client, nil
}
