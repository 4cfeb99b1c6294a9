package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/ibfadebot/internal/blob/s3"
	"github.com/alanyoungcy/ibfadebot/internal/cache/redis"
	"github.com/alanyoungcy/ibfadebot/internal/config"
	"github.com/alanyoungcy/ibfadebot/internal/domain"
	"github.com/alanyoungcy/ibfadebot/internal/notify"
	"github.com/alanyoungcy/ibfadebot/internal/store/postgres"
)

// Dependencies bundles every collaborator the modes need. Wire constructs
// them; the returned cleanup function tears them down in reverse order.
type Dependencies struct {
	// Stores (nil when no database is configured)
	IntentStore   domain.IntentStore
	PositionStore domain.PositionStore
	SessionStore  domain.SessionStore

	// Redis
	SignalBus   domain.SignalBus
	RiskStates  domain.RiskStateStore
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Blob storage (nil unless s3.enabled)
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// hasPostgres reports whether a database connection is configured at all.
// Replay runs fine without one; persistence is simply skipped.
func hasPostgres(cfg *config.Config) bool {
	return cfg.Database.DSN != "" || cfg.Database.Host != ""
}

// Wire constructs the concrete dependency implementations from the given
// configuration. Redis is mandatory (the signal bus carries every intent);
// Postgres and S3 are optional collaborators.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	if hasPostgres(cfg) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.IntentStore = postgres.NewIntentStore(pool)
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.SessionStore = postgres.NewSessionStore(pool)
	}

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

	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	if cfg.Risk.AggregateAcrossSymbols {
		deps.RiskStates = redis.NewRiskStateStore(redisClient)
	}

	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewSessionArchiver(deps.BlobWriter)
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhook))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	if cfg.Notify.RateLimitPerMinute > 0 {
		deps.Notifier.WithRateLimit(deps.RateLimiter, cfg.Notify.RateLimitPerMinute, time.Minute)
	}

	return deps, cleanup, nil
}
