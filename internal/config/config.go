package config

import "time"

// RepricerConfig is the root configuration for a repricer instance.
type RepricerConfig struct {
	Instance   InstanceConfig    `yaml:"instance"`
	API        APIConfig         `yaml:"api"`
	Database   DatabaseConfig    `yaml:"database"`
	Redis      RedisConfig       `yaml:"redis"`
	Kafka      KafkaConfig       `yaml:"kafka"`
	RateLimits []RateLimitConfig `yaml:"rate_limits"`
	Jobs       JobsConfig        `yaml:"jobs"`
	Pricing    PricingConfig     `yaml:"pricing"`
	HTTP       HTTPConfig        `yaml:"http"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Log        LogConfig         `yaml:"log"`
}

// InstanceConfig identifies this repricer.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds Back Market API settings.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Token          string        `yaml:"token"`        // Basic auth token (base64 of client:secret)
	BuybackPath    string        `yaml:"buyback_path"` // Prefix for buyback endpoints
	Language       string        `yaml:"language"`     // Accept-Language, e.g. "fr-fr"
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"` // Max wait for a rate limit token
}

// DatabaseConfig holds persistence settings.
// Memory switches to in-process stores (development only).
type DatabaseConfig struct {
	Memory   bool     `yaml:"memory"`
	Migrate  bool     `yaml:"migrate"`
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds the competitor offer cache settings. Empty Addr disables the cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	OfferTTL time.Duration `yaml:"offer_ttl"`
}

// KafkaConfig holds event publishing settings. Empty Brokers disables publishing.
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	PriceTopic string   `yaml:"price_topic"`
	OrderTopic string   `yaml:"order_topic"`
}

// RateLimitConfig seeds one token bucket.
type RateLimitConfig struct {
	Name           string        `yaml:"name"`
	MaxTokens      int           `yaml:"max_tokens"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// JobConfig holds the cadence of one scheduled job.
type JobConfig struct {
	Cadence    time.Duration `yaml:"cadence"`
	RunOnStart bool          `yaml:"run_on_start"`
}

// JobsConfig holds all scheduled jobs.
type JobsConfig struct {
	SyncListings JobConfig `yaml:"sync_listings"`
	SyncOrders   JobConfig `yaml:"sync_orders"`
	RepriceSweep JobConfig `yaml:"reprice_sweep"`
}

// PricingConfig holds engine-wide pricing settings.
// Mode and FallbackRule apply to parameter rows that leave them unset.
type PricingConfig struct {
	Mode             string `yaml:"mode"`
	FallbackRule     string `yaml:"fallback_rule"`
	SweepConcurrency int    `yaml:"sweep_concurrency"`
	Currency         string `yaml:"currency"`
}

// HTTPConfig holds control surface settings.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}
