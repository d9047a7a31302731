package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rickgao/bm-repricer/internal/model"
)

// PricePlaces is the number of decimals published prices carry.
const PricePlaces = 2

var one = decimal.NewFromInt(1)

// Input is everything the strategy needs for one decision.
type Input struct {
	Params       model.PricingParameters
	BasePrice    decimal.Decimal
	CurrentPrice decimal.Decimal
	Competitor   *model.CompetitorOffer // Best competing offer, nil if none
}

// Decision is the outcome of the strategy.
type Decision struct {
	Reference    decimal.Decimal // Price the floor was derived from
	Floor        decimal.Decimal
	Target       decimal.Decimal // Before clamping
	Price        decimal.Decimal // Final price
	UsedFallback bool
	Unchanged    bool // Price equals CurrentPrice
}

// Round rounds a price half-up to PricePlaces.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(PricePlaces)
}

// Floor returns the break-even price for a reference price, rounded up to
// the cent.
func Floor(p model.PricingParameters, reference decimal.Decimal) decimal.Decimal {
	return p.Costs().Add(reference.Mul(p.MTarget.Add(p.FBM))).RoundCeil(PricePlaces)
}

// CompetitorTarget steps one price_step past the competitor in the direction
// of the mode.
func CompetitorTarget(p model.PricingParameters, competitor decimal.Decimal) decimal.Decimal {
	if p.Mode == model.ModeOvercut {
		return competitor.Add(p.PriceStep)
	}
	return competitor.Sub(p.PriceStep)
}

// FallbackTarget applies the parameters' no-competitor rule.
func FallbackTarget(p model.PricingParameters, base, current decimal.Decimal) (decimal.Decimal, error) {
	switch p.FallbackRule {
	case model.FallbackMaxPrice, "":
		return p.MaxPrice, nil
	case model.FallbackCostPlus:
		denom := one.Sub(p.MTarget).Sub(p.FBM)
		if !denom.IsPositive() {
			return decimal.Zero, model.NewValidationError("m_target", "m_target + f_bm must be < 1")
		}
		return p.Costs().Div(denom), nil
	case model.FallbackBasePrice:
		return base, nil
	case model.FallbackKeepCurrent:
		return current, nil
	default:
		return decimal.Zero, model.NewValidationError("fallback_rule", "unknown rule "+string(p.FallbackRule))
	}
}

// Clamp bounds a target to [min_price, max_price] and raises it to the
// floor. A floor above max_price cannot satisfy both bounds and is rejected.
func Clamp(p model.PricingParameters, target, floor decimal.Decimal) (decimal.Decimal, error) {
	if floor.GreaterThan(p.MaxPrice) {
		return decimal.Zero, model.NewValidationError("parameters",
			fmt.Sprintf("floor %s exceeds max_price %s", floor.StringFixed(PricePlaces), p.MaxPrice.StringFixed(PricePlaces)))
	}

	price := Round(target)
	if price.LessThan(p.MinPrice) {
		price = p.MinPrice
	}
	if price.GreaterThan(p.MaxPrice) {
		price = p.MaxPrice
	}
	if price.LessThan(floor) {
		price = floor
	}
	return price, nil
}

// Decide runs the strategy. Params must already have defaults applied.
func Decide(in Input) (Decision, error) {
	var d Decision

	reference := in.BasePrice
	if !reference.IsPositive() {
		reference = in.CurrentPrice
	}
	if in.Competitor != nil {
		reference = in.Competitor.Price
	}
	d.Reference = reference
	d.Floor = Floor(in.Params, reference)

	if in.Competitor != nil {
		d.Target = CompetitorTarget(in.Params, in.Competitor.Price)
	} else {
		target, err := FallbackTarget(in.Params, in.BasePrice, in.CurrentPrice)
		if err != nil {
			return Decision{}, err
		}
		d.Target = target
		d.UsedFallback = true
	}

	price, err := Clamp(in.Params, d.Target, d.Floor)
	if err != nil {
		return Decision{}, err
	}
	d.Price = price
	d.Unchanged = price.Equal(in.CurrentPrice)
	return d, nil
}

// IsWinner reports whether price beats every competing offer: strictly lower
// when undercutting, strictly higher when overcutting. Our own offers are
// ignored. With no competing offers the price wins.
func IsWinner(price decimal.Decimal, offers []model.CompetitorOffer, mode model.PricingMode) bool {
	for _, o := range offers {
		if o.IsOwn() {
			continue
		}
		if mode == model.ModeOvercut {
			if !price.GreaterThan(o.Price) {
				return false
			}
		} else if !price.LessThan(o.Price) {
			return false
		}
	}
	return true
}
