package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/TemamAb/ainex-sub000/internal/blob/s3"
	"github.com/TemamAb/ainex-sub000/internal/cache/redis"
	"github.com/TemamAb/ainex-sub000/internal/config"
	"github.com/TemamAb/ainex-sub000/internal/domain"
	"github.com/TemamAb/ainex-sub000/internal/notify"
	"github.com/TemamAb/ainex-sub000/internal/store/postgres"
)

// Dependencies bundles every shared dependency the operating modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Settlements domain.SettlementStore
	RiskEvents  domain.RiskEventStore
	Params      domain.ParamSnapshotStore

	// Caches and coordination
	PriceCache  domain.PriceCache
	QuoteCache  domain.QuoteCache
	RateLimiter domain.RateLimiter
	Locks       *redis.LockManager
	Bus         domain.EventBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Raw clients, retained for health probes.
	PG    *postgres.Client
	Redis *redis.Client
	S3    *s3blob.Client
}

// needsPostgres returns true for modes that require the settlement database.
func needsPostgres(mode string) bool {
	switch mode {
	case "pipeline", "monitor":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that export ledger archives.
func needsS3(mode string) bool {
	return mode == "pipeline"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// Concrete stores are kept around because the archiver needs their
	// ListBefore methods, which the domain interfaces do not carry.
	var (
		settlementStore *postgres.SettlementStore
		riskEventStore  *postgres.RiskEventStore
		paramStore      *postgres.ParamStore
	)

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
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
		settlementStore = postgres.NewSettlementStore(pool)
		riskEventStore = postgres.NewRiskEventStore(pool)
		paramStore = postgres.NewParamStore(pool)

		deps.PG = pgClient
		deps.Settlements = settlementStore
		deps.RiskEvents = riskEventStore
		deps.Params = paramStore
	}

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

	deps.Redis = redisClient
	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.QuoteCache = redis.NewQuoteCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.Bus = redis.NewEventBus(redisClient)

	// --- S3 blob storage (only for modes that export archives) ---
	if needsS3(cfg.Mode) {
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

		blobStore := s3blob.NewStore(s3Client)
		deps.S3 = s3Client
		deps.BlobWriter = blobStore
		deps.BlobReader = blobStore

		if settlementStore != nil {
			deps.Archiver = s3blob.NewArchiver(
				deps.BlobWriter,
				settlementStore,
				riskEventStore,
				paramStore,
				logger,
			)
		}
	}

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

	return deps, cleanup, nil
}
