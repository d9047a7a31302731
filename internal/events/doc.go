// Package events publishes repricer events to kafka.
//
// Two topics are written:
//   - price topic: one PriceChanged per successful publish, keyed by listing id
//   - order topic: one OrderSynced per buyback order seen by the order sync job,
//     keyed by order id
//
// When kafka is not configured, Discard is used instead.
package events
