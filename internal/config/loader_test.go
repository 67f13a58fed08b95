package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
mode = "serve"

[ledger]
admin_address = "0x00000000000000000000000000000000000000aa"
settlement_account = "0x00000000000000000000000000000000000000ab"
fee_recipient = "0x00000000000000000000000000000000000000ac"

[postgres]
host = "db.internal"
database = "tradepost"

[registry]
base_url = "http://registry.internal"

[payments]
base_url = "http://payments.internal"
`

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfigFile(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "serve" {
		t.Fatalf("mode = %q, want serve", cfg.Mode)
	}
	if cfg.Postgres.Host != "db.internal" {
		t.Fatalf("postgres host = %q", cfg.Postgres.Host)
	}
	// Untouched sections keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("redis addr default lost: %q", cfg.Redis.Addr)
	}
	if cfg.Ledger.FeeBps != 25 {
		t.Fatalf("ledger fee_bps default lost: %d", cfg.Ledger.FeeBps)
	}
	if cfg.Ledger.LockTTL.Duration != 15*time.Second {
		t.Fatalf("ledger lock_ttl default lost: %v", cfg.Ledger.LockTTL.Duration)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadEnvOverridesWin(t *testing.T) {
	path := writeConfigFile(t, minimalConfig)

	t.Setenv("TRADEPOST_POSTGRES_HOST", "env-db.internal")
	t.Setenv("TRADEPOST_LEDGER_FEE_BPS", "50")
	t.Setenv("TRADEPOST_REGISTRY_TIMEOUT", "2s")
	t.Setenv("TRADEPOST_NOTIFY_EVENTS", "item_sold, fee_updated")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Postgres.Host != "env-db.internal" {
		t.Fatalf("env override lost: postgres host = %q", cfg.Postgres.Host)
	}
	if cfg.Ledger.FeeBps != 50 {
		t.Fatalf("env override lost: fee_bps = %d", cfg.Ledger.FeeBps)
	}
	if cfg.Registry.Timeout.Duration != 2*time.Second {
		t.Fatalf("env override lost: registry timeout = %v", cfg.Registry.Timeout.Duration)
	}
	if len(cfg.Notify.Events) != 2 || cfg.Notify.Events[1] != "fee_updated" {
		t.Fatalf("env override lost: notify events = %v", cfg.Notify.Events)
	}
}

func TestValidateAggregatesProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "nonsense"
	cfg.Ledger.AdminAddress = "not-an-address"
	cfg.Ledger.SettlementAccount = ""
	cfg.Registry.BaseURL = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate should fail")
	}
	msg := err.Error()
	for _, want := range []string{"unknown mode", "admin_address", "settlement_account", "registry: base_url"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("validation error missing %q:\n%s", want, msg)
		}
	}
}

func TestValidatePrincipals(t *testing.T) {
	cfg := Defaults()
	cfg.Ledger.AdminAddress = "0x00000000000000000000000000000000000000aa"
	cfg.Ledger.SettlementAccount = "0x00000000000000000000000000000000000000ab"
	cfg.Server.Principals = []PrincipalConfig{
		{Name: "both", Address: "0x00000000000000000000000000000000000000ac", Token: "t", TokenBcrypt: "h"},
		{Name: "neither", Address: "0x00000000000000000000000000000000000000ad"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate should fail")
	}
	if !strings.Contains(err.Error(), "principals[0]") || !strings.Contains(err.Error(), "principals[1]") {
		t.Fatalf("both principal problems should be reported:\n%s", err)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"
	cfg.Server.Principals = []PrincipalConfig{
		{Name: "admin", Address: "0x00000000000000000000000000000000000000aa", Token: "secret-token"},
	}

	red := RedactedConfig(&cfg)
	if red.Postgres.Password != "***" || red.Redis.Password != "***" || red.S3.SecretKey != "***" {
		t.Fatal("passwords not redacted")
	}
	if red.Server.Principals[0].Token != "***" {
		t.Fatal("principal token not redacted")
	}
	// The original must be untouched.
	if cfg.Postgres.Password != "hunter2" || cfg.Server.Principals[0].Token != "secret-token" {
		t.Fatal("redaction mutated the source config")
	}
}
