// Package listing holds the marketplace sync jobs.
//
// ListingSyncer mirrors seller listings from the marketplace into the listing
// store, preserving repricer-owned fields (id, last_dip_at). OrderSyncer
// forwards buyback orders to kafka for the order lifecycle consumers; the
// repricer itself keeps no order state beyond change detection.
//
// Both satisfy scheduler.Handler.
package listing
