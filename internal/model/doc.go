// Package model defines shared data types used across the repricer.
//
// All types mirror the database schema in internal/database/migrations.
//
// Conventions:
//   - Prices and cost components: decimal.Decimal, rounded to 2 places before publish
//   - Fractions (margin, fee): decimal.Decimal in [0, 1)
//   - Timestamps: time.Time in UTC
//   - IDs: uuid.UUID for rows we own, string for marketplace identifiers
package model
