// Package memstore is an in-memory implementation of the repricer stores,
// used in development mode (database.memory: true) and by tests. It mirrors
// the Postgres repositories in internal/database method for method.
package memstore
