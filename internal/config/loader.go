package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file after ${VAR} expansion.
// Secrets can live here instead of in the YAML.
const (
	EnvConfigPath       = "REPRICER_CONFIG"
	EnvAPIToken         = "BACKMARKET_API_TOKEN"
	EnvAPIBaseURL       = "BACKMARKET_API_URL"
	EnvDatabasePassword = "REPRICER_DATABASE_PASSWORD"
	EnvRedisAddr        = "REPRICER_REDIS_ADDR"
	EnvRedisPassword    = "REPRICER_REDIS_PASSWORD"
	EnvKafkaBrokers     = "REPRICER_KAFKA_BROKERS"
	EnvHTTPPort         = "REPRICER_HTTP_PORT"
	EnvLogLevel         = "REPRICER_LOG_LEVEL"
)

// LoadEnvFiles loads .env style files into the process environment. Missing
// files are skipped; variables already set are never overwritten.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// ResolvePath returns the config path: REPRICER_CONFIG when set, otherwise
// fallback.
func ResolvePath(fallback string) string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return fallback
}

// Load reads a YAML config file, expands ${VAR} references and applies the
// REPRICER_* / BACKMARKET_* overrides. Unknown keys are rejected so a typo
// in a cadence or bucket name does not silently fall back to a default.
func Load(path string) (*RepricerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg RepricerConfig
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays non-empty environment values onto cfg.
func (c *RepricerConfig) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvAPIToken); ok {
		c.API.Token = v
	}
	if v, ok := get(EnvAPIBaseURL); ok {
		c.API.BaseURL = v
	}
	if v, ok := get(EnvDatabasePassword); ok {
		c.Database.Postgres.Password = v
	}
	if v, ok := get(EnvRedisAddr); ok {
		c.Redis.Addr = v
	}
	if v, ok := get(EnvRedisPassword); ok {
		c.Redis.Password = v
	}
	if v, ok := get(EnvKafkaBrokers); ok {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		c.Kafka.Brokers = brokers
	}
	if v, ok := get(EnvHTTPPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHTTPPort, err)
		}
		c.HTTP.Port = port
	}
	if v, ok := get(EnvLogLevel); ok {
		c.Log.Level = v
	}
	return nil
}

// LoadWithDefaults loads config and fills every unset field.
func LoadWithDefaults(path string) (*RepricerConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults and validates.
func LoadAndValidate(path string) (*RepricerConfig, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
