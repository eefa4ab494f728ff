package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fxarena/fxarena/internal/badge"
	s3blob "github.com/fxarena/fxarena/internal/blob/s3"
	"github.com/fxarena/fxarena/internal/cache/redis"
	"github.com/fxarena/fxarena/internal/config"
	"github.com/fxarena/fxarena/internal/domain"
	"github.com/fxarena/fxarena/internal/notify"
	"github.com/fxarena/fxarena/internal/settlement"
	"github.com/fxarena/fxarena/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Persistence
	Runner domain.TxRunner
	Stores domain.Stores

	// Redis
	Locks       domain.LockManager
	Prices      domain.PriceSource
	Events      *redis.EventBus
	RateLimiter *redis.RateLimiter

	// Settlement engine
	Closer    *settlement.Closer
	Monitor   *settlement.Monitor
	Finalizer *settlement.Finalizer

	// Cold storage (nil when disabled)
	Archiver *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// settlementConfig snapshots the TOML settlement section into the form the
// engine consumes.
func settlementConfig(cfg *config.Config) settlement.ConfigProvider {
	snap := settlement.Config{
		Thresholds: settlement.Thresholds{
			Safe:        cfg.Settlement.SafeThreshold,
			Warning:     cfg.Settlement.WarningThreshold,
			Call:        cfg.Settlement.CallThreshold,
			Liquidation: cfg.Settlement.LiquidationThreshold,
		},
		CheckInterval: cfg.Settlement.CheckInterval.Duration,
		Precision:     int32(cfg.Settlement.Precision),
	}
	return func() settlement.Config { return snap }
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Runner = postgres.NewRunner(pool)
	deps.Stores = postgres.Stores(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Locks = redis.NewLockManager(redisClient)
	deps.Prices = redis.NewQuoteSource(redisClient)
	deps.Events = redis.NewEventBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Badge service (no-op when unconfigured) ---
	badges := badge.New(cfg.Badge.BaseURL, cfg.Badge.APIKey)

	// --- Settlement engine ---
	settleCfg := settlementConfig(cfg)
	deps.Closer = settlement.NewCloser(logger)
	deps.Monitor = settlement.NewMonitor(
		deps.Runner, deps.Stores, deps.Prices, deps.Closer,
		deps.Events, deps.Notifier, settleCfg, logger,
	)
	deps.Finalizer = settlement.NewFinalizer(
		deps.Runner, deps.Stores, deps.Prices, deps.Closer,
		deps.Events, deps.Notifier, badges, settleCfg, logger,
	)

	// --- S3 contest archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		// Verify bucket access up front rather than on the first archive run.
		healthCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = s3Client.Health(healthCtx)
		cancel()
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3 health: %w", err)
		}

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.Stores,
			cfg.Scheduler.ArchiveRetentionDays,
			logger,
		)
	}

	return deps, cleanup, nil
}
