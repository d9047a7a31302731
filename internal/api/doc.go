// Package api provides the Back Market REST client.
//
// Endpoints used by the repricer:
//   - GET  /ws/listings, GET/POST /ws/listings/{id}   seller listings
//   - POST /ws/listings/bulk, GET /ws/tasks/{id}        bulk ingestion
//   - GET  /ws/backbox/v1/competitors/{id}             competing offers
//   - GET  /ws/buyback/v1/orders, /orders/{id}, PUT /orders/{id}/status
//
// Every request, including each retry attempt, takes a token from the
// configured rate limiter before it is sent. There is no unthrottled path.
package api
