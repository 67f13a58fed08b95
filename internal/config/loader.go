package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADEPOST_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADEPOST_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.AdminAddress, "TRADEPOST_LEDGER_ADMIN_ADDRESS")
	setStr(&cfg.Ledger.SettlementAccount, "TRADEPOST_LEDGER_SETTLEMENT_ACCOUNT")
	setDuration(&cfg.Ledger.LockTTL, "TRADEPOST_LEDGER_LOCK_TTL")
	setUint64(&cfg.Ledger.FeeBps, "TRADEPOST_LEDGER_FEE_BPS")
	setStr(&cfg.Ledger.FeeRecipient, "TRADEPOST_LEDGER_FEE_RECIPIENT")
	setStr(&cfg.Ledger.AuctionVenue, "TRADEPOST_LEDGER_AUCTION_VENUE")
	setStr(&cfg.Ledger.BundleVenue, "TRADEPOST_LEDGER_BUNDLE_VENUE")
	setStr(&cfg.Ledger.AssetFactory, "TRADEPOST_LEDGER_ASSET_FACTORY")
	setStr(&cfg.Ledger.PrivateAssetFactory, "TRADEPOST_LEDGER_PRIVATE_ASSET_FACTORY")
	setStr(&cfg.Ledger.FlagshipCollection, "TRADEPOST_LEDGER_FLAGSHIP_COLLECTION")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRADEPOST_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRADEPOST_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADEPOST_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADEPOST_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADEPOST_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADEPOST_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADEPOST_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "TRADEPOST_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "TRADEPOST_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADEPOST_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADEPOST_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRADEPOST_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEPOST_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEPOST_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEPOST_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEPOST_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEPOST_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "TRADEPOST_REDIS_STREAM_MAX_LEN")

	// ── Registry ──
	setStr(&cfg.Registry.BaseURL, "TRADEPOST_REGISTRY_BASE_URL")
	setStr(&cfg.Registry.APIKey, "TRADEPOST_REGISTRY_API_KEY")
	setDuration(&cfg.Registry.Timeout, "TRADEPOST_REGISTRY_TIMEOUT")
	setInt(&cfg.Registry.RetryMax, "TRADEPOST_REGISTRY_RETRY_MAX")
	setDuration(&cfg.Registry.ProbeCacheTTL, "TRADEPOST_REGISTRY_PROBE_CACHE_TTL")

	// ── Payments ──
	setStr(&cfg.Payments.BaseURL, "TRADEPOST_PAYMENTS_BASE_URL")
	setStr(&cfg.Payments.APIKey, "TRADEPOST_PAYMENTS_API_KEY")
	setDuration(&cfg.Payments.Timeout, "TRADEPOST_PAYMENTS_TIMEOUT")

	// ── Venues ──
	setStr(&cfg.Venues.Auction.BaseURL, "TRADEPOST_VENUES_AUCTION_BASE_URL")
	setStr(&cfg.Venues.Auction.Token, "TRADEPOST_VENUES_AUCTION_TOKEN")
	setDuration(&cfg.Venues.Auction.Timeout, "TRADEPOST_VENUES_AUCTION_TIMEOUT")
	setStr(&cfg.Venues.Bundle.BaseURL, "TRADEPOST_VENUES_BUNDLE_BASE_URL")
	setStr(&cfg.Venues.Bundle.Token, "TRADEPOST_VENUES_BUNDLE_TOKEN")
	setDuration(&cfg.Venues.Bundle.Timeout, "TRADEPOST_VENUES_BUNDLE_TIMEOUT")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRADEPOST_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEPOST_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEPOST_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEPOST_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEPOST_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADEPOST_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADEPOST_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "TRADEPOST_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "TRADEPOST_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "TRADEPOST_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.BatchSize, "TRADEPOST_ARCHIVE_BATCH_SIZE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADEPOST_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADEPOST_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADEPOST_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADEPOST_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEPOST_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADEPOST_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADEPOST_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADEPOST_MODE")
	setStr(&cfg.LogLevel, "TRADEPOST_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
