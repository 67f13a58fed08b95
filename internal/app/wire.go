package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/avendale/tradepost/internal/blob/s3"
	"github.com/avendale/tradepost/internal/cache/redis"
	"github.com/avendale/tradepost/internal/config"
	"github.com/avendale/tradepost/internal/domain"
	"github.com/avendale/tradepost/internal/engine"
	"github.com/avendale/tradepost/internal/notify"
	"github.com/avendale/tradepost/internal/payments"
	"github.com/avendale/tradepost/internal/registry"
	"github.com/avendale/tradepost/internal/store/postgres"
	"github.com/avendale/tradepost/internal/venue"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Persistence
	Store domain.Store

	// Redis
	Locks       domain.LockManager
	Bus         domain.EventBus
	Royalties   domain.RoyaltyCache
	RateLimiter domain.RateLimiter

	// Outbound clients
	Registry domain.AssetRegistry
	Rail     domain.PaymentRail
	Auction  domain.AuctionVenue
	Bundle   domain.BundleVenue

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Settlement core
	Engine *engine.Engine

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "serve", "archive", "full":
		return true
	default:
		return false
	}
}

// needsEngine returns true for modes that serve ledger operations.
func needsEngine(mode string) bool {
	switch mode {
	case "serve", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that require object storage. Archive mode
// always needs it; full mode only when archival is switched on.
func needsS3(mode string, cfg *config.Config) bool {
	switch mode {
	case "archive":
		return true
	case "full":
		return cfg.Archive.Enabled
	default:
		return false
	}
}

// bootstrapParams converts the configured first-start values into the
// parameter singleton shape. Addresses were validated at config load, so
// HexToAddress cannot silently mangle anything here.
func bootstrapParams(cfg config.LedgerConfig) domain.LedgerParams {
	return domain.LedgerParams{
		FeeBps:              cfg.FeeBps,
		FeeRecipient:        common.HexToAddress(cfg.FeeRecipient),
		AuctionVenue:        common.HexToAddress(cfg.AuctionVenue),
		BundleVenue:         common.HexToAddress(cfg.BundleVenue),
		AssetFactory:        common.HexToAddress(cfg.AssetFactory),
		PrivateAssetFactory: common.HexToAddress(cfg.PrivateAssetFactory),
		FlagshipCollection:  common.HexToAddress(cfg.FlagshipCollection),
	}
}

// registryConfig builds the ownership-oracle client configuration. The
// settlement account must reach the registry client: approval checks ask
// whether a party authorized that exact operator address.
func registryConfig(cfg *config.Config) registry.Config {
	return registry.Config{
		BaseURL:           cfg.Registry.BaseURL,
		APIKey:            cfg.Registry.APIKey,
		Timeout:           cfg.Registry.Timeout.Duration,
		RetryMax:          cfg.Registry.RetryMax,
		ProbeCacheTTL:     cfg.Registry.ProbeCacheTTL.Duration,
		SettlementAccount: common.HexToAddress(cfg.Ledger.SettlementAccount),
	}
}

// paymentsConfig builds the payment rail client configuration.
func paymentsConfig(cfg *config.Config) payments.Config {
	return payments.Config{
		BaseURL:           cfg.Payments.BaseURL,
		APIKey:            cfg.Payments.APIKey,
		Timeout:           cfg.Payments.Timeout.Duration,
		SettlementAccount: common.HexToAddress(cfg.Ledger.SettlementAccount),
	}
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

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
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

		deps.Store = postgres.NewStore(pgClient.Pool())
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

	deps.Locks = redis.NewLockManager(redisClient)
	deps.Bus = redis.NewEventBus(redisClient, cfg.Redis.StreamMaxLen)
	deps.Royalties = redis.NewRoyaltyCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- Outbound clients (only for modes that settle trades) ---
	if needsEngine(cfg.Mode) {
		deps.Registry = registry.New(registryConfig(cfg))
		deps.Rail = payments.New(paymentsConfig(cfg))
		if cfg.Venues.Auction.BaseURL != "" {
			deps.Auction = venue.NewAuctionClient(venue.Config{
				BaseURL: cfg.Venues.Auction.BaseURL,
				Token:   cfg.Venues.Auction.Token,
				Timeout: cfg.Venues.Auction.Timeout.Duration,
			})
		}
		if cfg.Venues.Bundle.BaseURL != "" {
			deps.Bundle = venue.NewBundleClient(venue.Config{
				BaseURL: cfg.Venues.Bundle.BaseURL,
				Token:   cfg.Venues.Bundle.Token,
				Timeout: cfg.Venues.Bundle.Timeout.Duration,
			})
		}
	}

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(cfg.Mode, cfg) {
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		if deps.Store != nil {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Store.Audit(), cfg.Archive.BatchSize)
		}
	}

	// --- Settlement engine ---
	if needsEngine(cfg.Mode) {
		eng := engine.New(engine.Deps{
			Store:     deps.Store,
			Registry:  deps.Registry,
			Rail:      deps.Rail,
			Auction:   deps.Auction,
			Bundle:    deps.Bundle,
			Locks:     deps.Locks,
			Bus:       deps.Bus,
			Royalties: deps.Royalties,
			Logger:    logger,
			Admin:     common.HexToAddress(cfg.Ledger.AdminAddress),
			LockTTL:   cfg.Ledger.LockTTL.Duration,
		})
		if err := eng.LoadParams(ctx, bootstrapParams(cfg.Ledger)); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: engine params: %w", err)
		}
		deps.Engine = eng
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
