package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-repricer
api:
  base_url: https://preprod.backmarket.fr
  token: abc123
database:
  postgres:
    host: localhost
    port: 5432
    name: repricer
    user: testuser
    password: testpass
rate_limits:
  - name: pricing
    max_tokens: 5
    refill_interval: 60s
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-repricer" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-repricer")
	}
	if cfg.API.BaseURL != "https://preprod.backmarket.fr" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "https://preprod.backmarket.fr")
	}
	if cfg.Database.Postgres.Host != "localhost" {
		t.Errorf("Database.Postgres.Host = %q, want %q", cfg.Database.Postgres.Host, "localhost")
	}
	if len(cfg.RateLimits) != 1 {
		t.Fatalf("len(RateLimits) = %d, want 1", len(cfg.RateLimits))
	}
	if cfg.RateLimits[0].RefillInterval != time.Minute {
		t.Errorf("RateLimits[0].RefillInterval = %v, want %v", cfg.RateLimits[0].RefillInterval, time.Minute)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_BM_TOKEN", "secret-token")
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-repricer
api:
  token: ${TEST_BM_TOKEN}
database:
  postgres:
    host: localhost
    name: repricer
    user: testuser
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.Token != "secret-token" {
		t.Errorf("API.Token = %q, want %q", cfg.API.Token, "secret-token")
	}
	if cfg.Database.Postgres.Password != "secret123" {
		t.Errorf("Database.Postgres.Password = %q, want %q", cfg.Database.Postgres.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-repricer
api:
  token: abc
database:
  memory: true
rate_limits:
  - name: pricing
    max_tokens: 5
    refill_interval: 60s
  - name: exports
    max_tokens: 1
    refill_interval: 1s
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.API.BaseURL != DefaultBaseURL {
		t.Errorf("API.BaseURL = %q, want default %q", cfg.API.BaseURL, DefaultBaseURL)
	}
	if cfg.API.Timeout != DefaultAPITimeout {
		t.Errorf("API.Timeout = %v, want default %v", cfg.API.Timeout, DefaultAPITimeout)
	}
	if cfg.Database.Postgres.Port != DefaultDBPort {
		t.Errorf("Database.Postgres.Port = %d, want default %d", cfg.Database.Postgres.Port, DefaultDBPort)
	}
	if cfg.Jobs.RepriceSweep.Cadence != DefaultRepriceSweep {
		t.Errorf("Jobs.RepriceSweep.Cadence = %v, want default %v", cfg.Jobs.RepriceSweep.Cadence, DefaultRepriceSweep)
	}
	if cfg.Pricing.FallbackRule != DefaultFallbackRule {
		t.Errorf("Pricing.FallbackRule = %q, want default %q", cfg.Pricing.FallbackRule, DefaultFallbackRule)
	}
	if cfg.HTTP.Port != DefaultHTTPPort {
		t.Errorf("HTTP.Port = %d, want default %d", cfg.HTTP.Port, DefaultHTTPPort)
	}

	// Four defaults plus one new bucket; pricing overridden in place.
	if len(cfg.RateLimits) != 5 {
		t.Fatalf("len(RateLimits) = %d, want 5", len(cfg.RateLimits))
	}
	byName := make(map[string]RateLimitConfig)
	for _, rl := range cfg.RateLimits {
		byName[rl.Name] = rl
	}
	if got := byName[BucketPricing]; got.MaxTokens != 5 || got.RefillInterval != time.Minute {
		t.Errorf("pricing bucket = %+v, want 5 per 1m", got)
	}
	if got := byName[BucketGlobal]; got.MaxTokens != 100 {
		t.Errorf("global bucket MaxTokens = %d, want 100", got.MaxTokens)
	}
	if _, ok := byName["exports"]; !ok {
		t.Error("exports bucket missing")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() RepricerConfig {
		cfg := RepricerConfig{
			Instance: InstanceConfig{ID: "test"},
			API:      APIConfig{Token: "tok"},
			Database: DatabaseConfig{
				Postgres: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10, MinConns: 2},
			},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *RepricerConfig)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *RepricerConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing token",
			mutate:  func(c *RepricerConfig) { c.API.Token = "" },
			wantErr: "api.token is required",
		},
		{
			name:    "missing postgres password",
			mutate:  func(c *RepricerConfig) { c.Database.Postgres.Password = "" },
			wantErr: "database.postgres.password is required",
		},
		{
			name:   "memory mode skips postgres",
			mutate: func(c *RepricerConfig) { c.Database.Memory = true; c.Database.Postgres = DBConfig{} },
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *RepricerConfig) {
				c.Database.Postgres.MaxConns = 5
				c.Database.Postgres.MinConns = 10
			},
			wantErr: "database.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "bucket without tokens",
			mutate:  func(c *RepricerConfig) { c.RateLimits[0].MaxTokens = 0 },
			wantErr: "rate_limits[0].max_tokens must be >= 1",
		},
		{
			name:    "unknown fallback",
			mutate:  func(c *RepricerConfig) { c.Pricing.FallbackRule = "magic" },
			wantErr: `pricing.fallback_rule "magic" is not a known rule`,
		},
		{
			name:    "bad mode",
			mutate:  func(c *RepricerConfig) { c.Pricing.Mode = "flat" },
			wantErr: `pricing.mode must be undercut or overcut, got "flat"`,
		},
		{
			name:    "bad port",
			mutate:  func(c *RepricerConfig) { c.HTTP.Port = 70000 },
			wantErr: "http.port must be between 1 and 65535, got 70000",
		},
		{
			name:   "valid config",
			mutate: func(c *RepricerConfig) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvAPIToken, "env-token")
	t.Setenv(EnvDatabasePassword, "a b+c")
	t.Setenv(EnvKafkaBrokers, "k1:9092, k2:9092,")
	t.Setenv(EnvHTTPPort, "9090")
	t.Setenv(EnvLogLevel, "")

	yaml := `
api:
  token: file-token
database:
  postgres:
    password: file-pass
log:
  level: warn
`
	cfg, err := Load(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.Token != "env-token" {
		t.Errorf("API.Token = %q, want %q", cfg.API.Token, "env-token")
	}
	if cfg.Database.Postgres.Password != "a b+c" {
		t.Errorf("Database.Postgres.Password = %q, want %q", cfg.Database.Postgres.Password, "a b+c")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Kafka.Brokers = %v, want [k1:9092 k2:9092]", cfg.Kafka.Brokers)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("HTTP.Port = %d, want 9090", cfg.HTTP.Port)
	}
	// Empty variables leave the file value alone.
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
}

func TestLoadBadEnvPort(t *testing.T) {
	t.Setenv(EnvHTTPPort, "eighty")
	if _, err := Load(writeTempFile(t, "instance:\n  id: x\n")); err == nil {
		t.Error("Load() with non-numeric port override succeeded, want error")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	yaml := `
jobs:
  reprice_sweeep:
    cadence: 5m
`
	if _, err := Load(writeTempFile(t, yaml)); err == nil {
		t.Error("Load() with misspelled key succeeded, want error")
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := LoadWithDefaults(writeTempFile(t, ""))
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if cfg.HTTP.Port != DefaultHTTPPort {
		t.Errorf("HTTP.Port = %d, want default %d", cfg.HTTP.Port, DefaultHTTPPort)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("TEST_REPRICER_FROM_FILE=from-file\nTEST_REPRICER_PRESET=from-file\n"), 0644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("TEST_REPRICER_PRESET", "from-shell")
	t.Cleanup(func() { os.Unsetenv("TEST_REPRICER_FROM_FILE") })

	if err := LoadEnvFiles(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadEnvFiles() error = %v", err)
	}
	if got := os.Getenv("TEST_REPRICER_FROM_FILE"); got != "from-file" {
		t.Errorf("TEST_REPRICER_FROM_FILE = %q, want %q", got, "from-file")
	}
	if got := os.Getenv("TEST_REPRICER_PRESET"); got != "from-shell" {
		t.Errorf("TEST_REPRICER_PRESET = %q, want shell value kept", got)
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	if got := ResolvePath("configs/a.yaml"); got != "configs/a.yaml" {
		t.Errorf("ResolvePath() = %q, want fallback", got)
	}
	t.Setenv(EnvConfigPath, "/etc/repricer.yaml")
	if got := ResolvePath("configs/a.yaml"); got != "/etc/repricer.yaml" {
		t.Errorf("ResolvePath() = %q, want %q", got, "/etc/repricer.yaml")
	}
}
