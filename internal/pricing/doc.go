// Package pricing implements the Dip-Peek-Peak repricing strategy.
//
// The strategy itself (strategy.go) is pure: given parameters, the listing,
// and the best competing offer it returns a price decision. The Engine wires
// it to storage, the competitor snapshot, the rate limited publish call and
// the audit log.
//
// Price derivation:
//
//	floor  = c_refurb + c_op + c_risk + reference × (m_target + f_bm)
//	target = competitor ∓ price_step          (undercut / overcut)
//	       | fallback rule                    (no competitor)
//	price  = max(clamp(round(target), min, max), floor)
//
// reference is the competitor price when one exists, otherwise the listing
// base price (or the current price when no base price is known). The floor
// is rounded up to the cent so that rounding never takes a price below
// break-even. When the floor exceeds max_price the parameters cannot be
// satisfied and the listing is skipped.
//
// Every evaluation, published or not, appends exactly one history entry.
// Probes never publish. Emergency recovery publishes the operator's price
// as is, still through the rate limiter, and is audited as kind "recovery".
package pricing
