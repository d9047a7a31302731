// Package database provides the PostgreSQL store for the repricer.
//
// A single pgx pool backs every repository:
//   - listings, pricing_parameters: operator and sync owned rows
//   - price_history: append-only audit log (UPDATE/DELETE rejected by trigger)
//   - competitor_offers: operator-injected test competitors
//   - rate_limit_buckets, scheduled_job_status: operational state
//
// The schema lives in migrations/ and is embedded into the binary; Migrate
// applies it with golang-migrate.
package database
