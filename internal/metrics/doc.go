// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Rate limiter tokens, acquire waits and timeouts per bucket
//   - Marketplace API requests by route and status
//   - Scheduled job runs by outcome and duration
//   - Reprice decisions by outcome
//
// Metrics implements the observer interfaces of ratelimit, api, scheduler
// and pricing, so components never import prometheus directly.
package metrics
