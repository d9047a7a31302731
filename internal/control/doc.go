// Package control is the operator control surface: a gin JSON API over the
// pricing engine, parameters, rate limits, scheduled jobs, test competitors
// and the price audit log.
//
// Routes (all under /api/v1 unless noted):
//
//	GET    /health                               (root) component health
//	GET    /parameters?sku=&grade=&country=      list pricing parameters
//	PUT    /parameters                           create or replace parameters
//	GET    /rate-limits                          all buckets
//	GET    /rate-limits/:name                    one bucket
//	PUT    /rate-limits/:name                    reconfigure a bucket
//	GET    /jobs                                 scheduled job statuses
//	POST   /jobs/:name/trigger                   run a job now (409 when busy)
//	POST   /jobs/trigger-all                     run every job now
//	GET    /listings                             listings
//	GET    /listings/:id                         one listing
//	POST   /listings/:id/evaluate                reprice one listing now
//	POST   /listings/:id/probe                   dry run against a hypothetical price
//	POST   /listings/:id/recover                 emergency price recovery
//	POST   /listings/recover                     bulk emergency recovery
//	POST   /listings/:id/test-competitors        add a test competitor
//	DELETE /listings/:id/test-competitors        remove all test competitors
//	GET    /listings/:id/history                 paged audit log, newest first
//	GET    /history/aggregate                    max own/competitor price over a window
//
// Mutations respond {"data": ..., "message": ...}; lists respond
// {"items": [...], "total": N, "page": P, "page_size": S}; failures respond
// {"error": ..., "message": ...}.
package control
