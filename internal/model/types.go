package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Listings and parameters
// -----------------------------------------------------------------------------

// Publication states reported by the marketplace.
const (
	PublicationOnline  = "online"
	PublicationOffline = "offline"
	PublicationPending = "pending"
)

// Listing is a sellable sku+grade+country combination published to the marketplace.
type Listing struct {
	ID          uuid.UUID       // Primary key
	ExternalID  string          // Marketplace listing id
	SKU         string          // Seller SKU
	Grade       string          // Condition tier
	CountryCode string          // Marketplace code (e.g. "fr-fr")
	Currency    string          // ISO 4217
	Price       decimal.Decimal // Currently published price
	BasePrice   decimal.Decimal // Base/floor reference price
	Quantity    int             // Units available
	State       string          // Publication state
	LastDipAt   *time.Time      // Last time a discount was published
	UpdatedAt   time.Time
}

// IsPublished reports whether the listing is online on the marketplace.
func (l Listing) IsPublished() bool {
	return l.State == PublicationOnline
}

// ParamsKey identifies a PricingParameters row.
type ParamsKey struct {
	SKU         string
	Grade       string
	CountryCode string
}

// Key returns the parameters key for a listing.
func (l Listing) Key() ParamsKey {
	return ParamsKey{SKU: l.SKU, Grade: l.Grade, CountryCode: l.CountryCode}
}

// PricingMode selects the direction of the competitor step.
type PricingMode string

const (
	// ModeUndercut prices one step below the best competitor (sell side).
	ModeUndercut PricingMode = "undercut"
	// ModeOvercut prices one step above the best competitor (buyback / cost recovery).
	ModeOvercut PricingMode = "overcut"
)

// Valid reports whether m is a known mode.
func (m PricingMode) Valid() bool {
	return m == ModeUndercut || m == ModeOvercut
}

// FallbackRule names the price used when no competitor offer exists.
type FallbackRule string

const (
	// FallbackMaxPrice targets max_price.
	FallbackMaxPrice FallbackRule = "max_price"
	// FallbackCostPlus targets costs / (1 - m_target - f_bm).
	FallbackCostPlus FallbackRule = "cost_plus"
	// FallbackBasePrice targets the listing base price.
	FallbackBasePrice FallbackRule = "base_price"
	// FallbackKeepCurrent keeps the currently published price.
	FallbackKeepCurrent FallbackRule = "keep_current"
)

// Valid reports whether r is a known fallback rule.
func (r FallbackRule) Valid() bool {
	switch r {
	case FallbackMaxPrice, FallbackCostPlus, FallbackBasePrice, FallbackKeepCurrent:
		return true
	}
	return false
}

// PricingParameters holds the operator-controlled pricing inputs for one
// (sku, grade, country) combination.
//
// Defaults applied by ApplyDefaults: Mode=undercut, FallbackRule=max_price,
// PriceStep=1.00. Validation happens at the control surface, never inside
// the pricing calculation.
type PricingParameters struct {
	SKU          string
	Grade        string
	CountryCode  string
	CRefurb      decimal.Decimal // Refurbishment cost
	COp          decimal.Decimal // Operational cost
	CRisk        decimal.Decimal // Risk provision
	MTarget      decimal.Decimal // Target margin (fraction)
	FBM          decimal.Decimal // Marketplace fee (fraction)
	PriceStep    decimal.Decimal // Over/undercut increment
	MinPrice     decimal.Decimal
	MaxPrice     decimal.Decimal
	Mode         PricingMode
	FallbackRule FallbackRule
	UpdatedAt    time.Time
}

// DefaultPriceStep is used when PriceStep is zero.
var DefaultPriceStep = decimal.NewFromInt(1)

// Key returns the parameters key.
func (p PricingParameters) Key() ParamsKey {
	return ParamsKey{SKU: p.SKU, Grade: p.Grade, CountryCode: p.CountryCode}
}

// Costs returns c_refurb + c_op + c_risk.
func (p PricingParameters) Costs() decimal.Decimal {
	return p.CRefurb.Add(p.COp).Add(p.CRisk)
}

// ApplyDefaults fills unset optional fields.
func (p *PricingParameters) ApplyDefaults() {
	if p.Mode == "" {
		p.Mode = ModeUndercut
	}
	if p.FallbackRule == "" {
		p.FallbackRule = FallbackMaxPrice
	}
	if p.PriceStep.IsZero() {
		p.PriceStep = DefaultPriceStep
	}
}

// Validate checks the parameters are internally consistent.
func (p PricingParameters) Validate() error {
	if p.SKU == "" {
		return NewValidationError("sku", "is required")
	}
	if p.Grade == "" {
		return NewValidationError("grade", "is required")
	}
	if p.CountryCode == "" {
		return NewValidationError("country_code", "is required")
	}
	for _, f := range []struct {
		name string
		v    decimal.Decimal
	}{
		{"c_refurb", p.CRefurb},
		{"c_op", p.COp},
		{"c_risk", p.CRisk},
		{"m_target", p.MTarget},
		{"f_bm", p.FBM},
		{"min_price", p.MinPrice},
	} {
		if f.v.IsNegative() {
			return NewValidationError(f.name, "must be >= 0")
		}
	}
	if !p.PriceStep.IsPositive() {
		return NewValidationError("price_step", "must be > 0")
	}
	if !p.MaxPrice.IsPositive() {
		return NewValidationError("max_price", "must be > 0")
	}
	if p.MinPrice.GreaterThan(p.MaxPrice) {
		return NewValidationError("min_price", "cannot exceed max_price")
	}
	if p.MTarget.Add(p.FBM).GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return NewValidationError("m_target", "m_target + f_bm must be < 1")
	}
	if !p.Mode.Valid() {
		return NewValidationError("mode", "must be undercut or overcut")
	}
	if !p.FallbackRule.Valid() {
		return NewValidationError("fallback_rule", "unknown rule "+string(p.FallbackRule))
	}
	return nil
}

// -----------------------------------------------------------------------------
// Competition and history
// -----------------------------------------------------------------------------

// CompetitorOffer is a competing (or our own prior) offer for a listing.
type CompetitorOffer struct {
	ID           uuid.UUID
	ListingID    uuid.UUID
	CompetitorID *string // nil means our own prior offer
	Name         string  // Display name of the seller
	Price        decimal.Decimal
	Currency     string
	IsWinner     bool // Marketplace reports this offer as the buybox winner
	IsTest       bool // Synthetic competitor injected by an operator
	Timestamp    time.Time
}

// IsOwn reports whether the offer is our own.
func (o CompetitorOffer) IsOwn() bool {
	return o.CompetitorID == nil
}

// EntryKind tags how a history entry was produced.
type EntryKind string

const (
	KindEvaluation EntryKind = "evaluation"
	KindProbe      EntryKind = "probe"
	KindRecovery   EntryKind = "recovery"
)

// PriceHistoryEntry is an immutable audit record of one price decision.
type PriceHistoryEntry struct {
	ID              uuid.UUID
	ListingID       uuid.UUID
	Price           decimal.Decimal
	Currency        string
	CompetitorName  string
	CompetitorPrice *decimal.Decimal // nil when no competitor was known
	FloorPrice      decimal.Decimal
	IsWinner        bool
	Kind            EntryKind
	Published       bool // A publish call was made for this decision
	Timestamp       time.Time
}

// PriceAggregate summarizes history over a time window.
type PriceAggregate struct {
	ListingID          *uuid.UUID
	Since              time.Time
	Until              time.Time
	MaxOwnPrice        *decimal.Decimal
	MaxCompetitorPrice *decimal.Decimal
	Entries            int
}

// -----------------------------------------------------------------------------
// Operational state
// -----------------------------------------------------------------------------

// RateLimitBucket is the persisted configuration and live state of one bucket.
type RateLimitBucket struct {
	Name           string
	MaxTokens      int
	RefillInterval time.Duration
	CurrentTokens  int
	LastRefillTime time.Time
	NextRefillTime time.Time
}

// ScheduledJobStatus reports the state of one scheduled job.
type ScheduledJobStatus struct {
	JobName   string
	Cadence   time.Duration
	IsRunning bool
	NextRun   time.Time
	LastRun   *time.Time
	LastError string
}
