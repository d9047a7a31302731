package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *RepricerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.Token == "" {
		return errors.New("api.token is required")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if !c.Database.Memory {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	}

	for i, rl := range c.RateLimits {
		if rl.Name == "" {
			return fmt.Errorf("rate_limits[%d].name is required", i)
		}
		if rl.MaxTokens < 1 {
			return fmt.Errorf("rate_limits[%d].max_tokens must be >= 1", i)
		}
		if rl.RefillInterval <= 0 {
			return fmt.Errorf("rate_limits[%d].refill_interval must be > 0", i)
		}
	}

	if c.Jobs.SyncListings.Cadence <= 0 || c.Jobs.SyncOrders.Cadence <= 0 || c.Jobs.RepriceSweep.Cadence <= 0 {
		return errors.New("jobs cadence must be > 0")
	}

	switch c.Pricing.Mode {
	case "undercut", "overcut":
	default:
		return fmt.Errorf("pricing.mode must be undercut or overcut, got %q", c.Pricing.Mode)
	}
	switch c.Pricing.FallbackRule {
	case "max_price", "cost_plus", "base_price", "keep_current":
	default:
		return fmt.Errorf("pricing.fallback_rule %q is not a known rule", c.Pricing.FallbackRule)
	}
	if c.Pricing.SweepConcurrency < 1 {
		return errors.New("pricing.sweep_concurrency must be >= 1")
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
