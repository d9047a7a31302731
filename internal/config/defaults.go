package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL          = "https://www.backmarket.fr"
	DefaultBuybackPath      = "/ws/buyback/v1"
	DefaultAPITimeout       = 30 * time.Second
	DefaultMaxRetries       = 3
	DefaultRetryBackoff     = 1 * time.Second
	DefaultAcquireTimeout   = 2 * time.Minute
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultOfferTTL         = 60 * time.Second
	DefaultPriceTopic       = "repricer.price-changed"
	DefaultOrderTopic       = "repricer.orders"
	DefaultSyncListings     = 30 * time.Minute
	DefaultSyncOrders       = 10 * time.Minute
	DefaultRepriceSweep     = 15 * time.Minute
	DefaultMode             = "undercut"
	DefaultFallbackRule     = "max_price"
	DefaultSweepConcurrency = 4
	DefaultCurrency         = "EUR"
	DefaultHTTPPort         = 8080
	DefaultMetricsPath      = "/metrics"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// Bucket names used by the API client.
const (
	BucketGlobal      = "global"
	BucketPricing     = "pricing"
	BucketOrders      = "orders"
	BucketCompetitors = "competitors"
)

// DefaultRateLimits returns the buckets seeded when the config lists none.
func DefaultRateLimits() []RateLimitConfig {
	return []RateLimitConfig{
		{Name: BucketGlobal, MaxTokens: 100, RefillInterval: 10 * time.Second},
		{Name: BucketPricing, MaxTokens: 20, RefillInterval: 10 * time.Second},
		{Name: BucketOrders, MaxTokens: 20, RefillInterval: 10 * time.Second},
		{Name: BucketCompetitors, MaxTokens: 40, RefillInterval: 10 * time.Second},
	}
}

func (c *RepricerConfig) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.BuybackPath == "" {
		c.API.BuybackPath = DefaultBuybackPath
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}
	if c.API.AcquireTimeout == 0 {
		c.API.AcquireTimeout = DefaultAcquireTimeout
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Redis / Kafka defaults
	if c.Redis.OfferTTL == 0 {
		c.Redis.OfferTTL = DefaultOfferTTL
	}
	if c.Kafka.PriceTopic == "" {
		c.Kafka.PriceTopic = DefaultPriceTopic
	}
	if c.Kafka.OrderTopic == "" {
		c.Kafka.OrderTopic = DefaultOrderTopic
	}

	// Rate limit defaults: configured buckets override the defaults by name.
	c.RateLimits = mergeRateLimits(DefaultRateLimits(), c.RateLimits)

	// Job defaults
	if c.Jobs.SyncListings.Cadence == 0 {
		c.Jobs.SyncListings.Cadence = DefaultSyncListings
	}
	if c.Jobs.SyncOrders.Cadence == 0 {
		c.Jobs.SyncOrders.Cadence = DefaultSyncOrders
	}
	if c.Jobs.RepriceSweep.Cadence == 0 {
		c.Jobs.RepriceSweep.Cadence = DefaultRepriceSweep
	}

	// Pricing defaults
	if c.Pricing.Mode == "" {
		c.Pricing.Mode = DefaultMode
	}
	if c.Pricing.FallbackRule == "" {
		c.Pricing.FallbackRule = DefaultFallbackRule
	}
	if c.Pricing.SweepConcurrency == 0 {
		c.Pricing.SweepConcurrency = DefaultSweepConcurrency
	}
	if c.Pricing.Currency == "" {
		c.Pricing.Currency = DefaultCurrency
	}

	// HTTP / metrics / log defaults
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

// mergeRateLimits returns base with entries from override replacing same-named ones;
// override entries with new names are appended.
func mergeRateLimits(base, override []RateLimitConfig) []RateLimitConfig {
	out := make([]RateLimitConfig, 0, len(base)+len(override))
	idx := make(map[string]int, len(base))
	for _, b := range base {
		idx[b.Name] = len(out)
		out = append(out, b)
	}
	for _, o := range override {
		if i, ok := idx[o.Name]; ok {
			out[i] = o
			continue
		}
		idx[o.Name] = len(out)
		out = append(out, o)
	}
	return out
}
