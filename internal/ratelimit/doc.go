// Package ratelimit implements the named token buckets that guard every
// outbound call to the marketplace API.
//
// Each bucket holds up to MaxTokens and is refilled to full once per
// RefillInterval. Refill is lazy: it happens inside Acquire/Status, under the
// bucket's lock, together with the decrement. At most MaxTokens tokens are
// therefore issued inside any single refill window.
package ratelimit
