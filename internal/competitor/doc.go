// Package competitor builds the snapshot of offers competing with a listing.
//
// Real offers come from the marketplace backbox endpoint through the rate
// limited API client, optionally cached in redis for a short TTL. Test
// competitors injected by an operator live in the store, are never cached,
// and are merged into every snapshot so they take part in winner
// computation exactly like real offers.
package competitor
