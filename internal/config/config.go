// Package config defines the top-level configuration for the tradepost
// ledger daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADEPOST_* environment variables.
type Config struct {
	Ledger   LedgerConfig   `toml:"ledger"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Registry RegistryConfig `toml:"registry"`
	Payments PaymentsConfig `toml:"payments"`
	Venues   VenuesConfig   `toml:"venues"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// LedgerConfig holds the ledger's own identity plus the bootstrap values for
// the persisted parameter singleton. The bootstrap fields only matter on the
// very first start: once the singleton row exists, admin setters own it.
type LedgerConfig struct {
	AdminAddress      string   `toml:"admin_address"`
	SettlementAccount string   `toml:"settlement_account"`
	LockTTL           duration `toml:"lock_ttl"`

	FeeBps              uint64 `toml:"fee_bps"`
	FeeRecipient        string `toml:"fee_recipient"`
	AuctionVenue        string `toml:"auction_venue"`
	BundleVenue         string `toml:"bundle_venue"`
	AssetFactory        string `toml:"asset_factory"`
	PrivateAssetFactory string `toml:"private_asset_factory"`
	FlagshipCollection  string `toml:"flagship_collection"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// RegistryConfig holds the asset registry (ownership oracle) endpoint.
type RegistryConfig struct {
	BaseURL       string   `toml:"base_url"`
	APIKey        string   `toml:"api_key"`
	Timeout       duration `toml:"timeout"`
	RetryMax      int      `toml:"retry_max"`
	ProbeCacheTTL duration `toml:"probe_cache_ttl"`
}

// PaymentsConfig holds the payment rail endpoint.
type PaymentsConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
}

// VenuesConfig holds the outbound endpoints of the sibling venues. The
// venues' on-ledger addresses live in the persisted parameter singleton;
// these are the HTTP endpoints their hooks are delivered to.
type VenuesConfig struct {
	Auction VenueConfig `toml:"auction"`
	Bundle  VenueConfig `toml:"bundle"`
}

// VenueConfig is one sibling venue's hook endpoint.
type VenueConfig struct {
	BaseURL string   `toml:"base_url"`
	Token   string   `toml:"token"`
	Timeout duration `toml:"timeout"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds audit-log archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	BatchSize     int      `toml:"batch_size"`
}

// ServerConfig holds HTTP server parameters and the principal table mapping
// bearer tokens to caller addresses.
type ServerConfig struct {
	Enabled         bool              `toml:"enabled"`
	Port            int               `toml:"port"`
	CORSOrigins     []string          `toml:"cors_origins"`
	RateLimit       int               `toml:"rate_limit"`
	RateLimitWindow duration          `toml:"rate_limit_window"`
	Principals      []PrincipalConfig `toml:"principals"`
}

// PrincipalConfig binds one bearer token to a caller address. Exactly one of
// Token (plaintext) or TokenBcrypt (bcrypt hash of the token) must be set.
type PrincipalConfig struct {
	Name        string `toml:"name"`
	Address     string `toml:"address"`
	Token       string `toml:"token"`
	TokenBcrypt string `toml:"token_bcrypt"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			LockTTL: duration{15 * time.Second},
			FeeBps:  25,
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "tradepost",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			TLSEnabled:   false,
			StreamMaxLen: 100_000,
		},
		Registry: RegistryConfig{
			BaseURL:       "http://localhost:8080",
			Timeout:       duration{5 * time.Second},
			RetryMax:      3,
			ProbeCacheTTL: duration{10 * time.Minute},
		},
		Payments: PaymentsConfig{
			BaseURL: "http://localhost:8081",
			Timeout: duration{10 * time.Second},
		},
		Venues: VenuesConfig{
			Auction: VenueConfig{Timeout: duration{5 * time.Second}},
			Bundle:  VenueConfig{Timeout: duration{5 * time.Second}},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradepost-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
			BatchSize:     5000,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"item_sold", "fee_updated", "fee_recipient_updated", "venue_updated"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"relay":   true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, relay, archive, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ledger identity
	if c.Ledger.AdminAddress == "" {
		errs = append(errs, "ledger: admin_address must be set")
	} else if !common.IsHexAddress(c.Ledger.AdminAddress) {
		errs = append(errs, fmt.Sprintf("ledger: admin_address %q is not a valid address", c.Ledger.AdminAddress))
	}
	if c.Ledger.SettlementAccount == "" {
		errs = append(errs, "ledger: settlement_account must be set")
	} else if !common.IsHexAddress(c.Ledger.SettlementAccount) {
		errs = append(errs, fmt.Sprintf("ledger: settlement_account %q is not a valid address", c.Ledger.SettlementAccount))
	}
	if c.Ledger.LockTTL.Duration <= 0 {
		errs = append(errs, "ledger: lock_ttl must be positive")
	}
	if c.Ledger.FeeBps > 1000 {
		errs = append(errs, fmt.Sprintf("ledger: fee_bps must be 0-1000, got %d", c.Ledger.FeeBps))
	}
	for _, f := range []struct{ name, val string }{
		{"fee_recipient", c.Ledger.FeeRecipient},
		{"auction_venue", c.Ledger.AuctionVenue},
		{"bundle_venue", c.Ledger.BundleVenue},
		{"asset_factory", c.Ledger.AssetFactory},
		{"private_asset_factory", c.Ledger.PrivateAssetFactory},
		{"flagship_collection", c.Ledger.FlagshipCollection},
	} {
		if f.val != "" && !common.IsHexAddress(f.val) {
			errs = append(errs, fmt.Sprintf("ledger: %s %q is not a valid address", f.name, f.val))
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.StreamMaxLen < 1 {
		errs = append(errs, "redis: stream_max_len must be >= 1")
	}

	// Registry + payments
	if c.Registry.BaseURL == "" {
		errs = append(errs, "registry: base_url must not be empty")
	}
	if c.Registry.Timeout.Duration <= 0 {
		errs = append(errs, "registry: timeout must be positive")
	}
	if c.Registry.RetryMax < 0 {
		errs = append(errs, "registry: retry_max must be >= 0")
	}
	if c.Payments.BaseURL == "" {
		errs = append(errs, "payments: base_url must not be empty")
	}
	if c.Payments.Timeout.Duration <= 0 {
		errs = append(errs, "payments: timeout must be positive")
	}

	// Venues — a token without an endpoint is a misconfiguration.
	if c.Venues.Auction.BaseURL == "" && c.Venues.Auction.Token != "" {
		errs = append(errs, "venues.auction: token set without base_url")
	}
	if c.Venues.Bundle.BaseURL == "" && c.Venues.Bundle.Token != "" {
		errs = append(errs, "venues.bundle: token set without base_url")
	}

	// S3 — only required when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
		if c.Archive.BatchSize < 1 {
			errs = append(errs, "archive: batch_size must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be positive when rate_limit is set")
		}
	}
	for i, p := range c.Server.Principals {
		if p.Address == "" || !common.IsHexAddress(p.Address) {
			errs = append(errs, fmt.Sprintf("server: principals[%d] address %q is not a valid address", i, p.Address))
		}
		hasPlain := p.Token != ""
		hasHash := p.TokenBcrypt != ""
		if hasPlain == hasHash {
			errs = append(errs, fmt.Sprintf("server: principals[%d] must set exactly one of token or token_bcrypt", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
