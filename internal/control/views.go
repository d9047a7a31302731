package control

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/bm-repricer/internal/model"
	"github.com/rickgao/bm-repricer/internal/pricing"
)

// Decimals marshal as JSON strings ("123.45") and unmarshal from strings or numbers.

type parametersBody struct {
	SKU          string          `json:"sku"`
	Grade        string          `json:"grade"`
	CountryCode  string          `json:"country_code"`
	CRefurb      decimal.Decimal `json:"c_refurb"`
	COp          decimal.Decimal `json:"c_op"`
	CRisk        decimal.Decimal `json:"c_risk"`
	MTarget      decimal.Decimal `json:"m_target"`
	FBM          decimal.Decimal `json:"f_bm"`
	PriceStep    decimal.Decimal `json:"price_step"`
	MinPrice     decimal.Decimal `json:"min_price"`
	MaxPrice     decimal.Decimal `json:"max_price"`
	Mode         string          `json:"mode"`
	FallbackRule string          `json:"fallback_rule"`
	UpdatedAt    *time.Time      `json:"updated_at,omitempty"`
}

func (b parametersBody) toModel() model.PricingParameters {
	return model.PricingParameters{
		SKU:          b.SKU,
		Grade:        b.Grade,
		CountryCode:  b.CountryCode,
		CRefurb:      b.CRefurb,
		COp:          b.COp,
		CRisk:        b.CRisk,
		MTarget:      b.MTarget,
		FBM:          b.FBM,
		PriceStep:    b.PriceStep,
		MinPrice:     b.MinPrice,
		MaxPrice:     b.MaxPrice,
		Mode:         model.PricingMode(b.Mode),
		FallbackRule: model.FallbackRule(b.FallbackRule),
	}
}

func parametersView(p model.PricingParameters) parametersBody {
	updated := p.UpdatedAt
	return parametersBody{
		SKU:          p.SKU,
		Grade:        p.Grade,
		CountryCode:  p.CountryCode,
		CRefurb:      p.CRefurb,
		COp:          p.COp,
		CRisk:        p.CRisk,
		MTarget:      p.MTarget,
		FBM:          p.FBM,
		PriceStep:    p.PriceStep,
		MinPrice:     p.MinPrice,
		MaxPrice:     p.MaxPrice,
		Mode:         string(p.Mode),
		FallbackRule: string(p.FallbackRule),
		UpdatedAt:    &updated,
	}
}

type listingBody struct {
	ID          uuid.UUID       `json:"id"`
	ExternalID  string          `json:"external_id"`
	SKU         string          `json:"sku"`
	Grade       string          `json:"grade"`
	CountryCode string          `json:"country_code"`
	Currency    string          `json:"currency"`
	Price       decimal.Decimal `json:"price"`
	BasePrice   decimal.Decimal `json:"base_price"`
	Quantity    int             `json:"quantity"`
	State       string          `json:"state"`
	LastDipAt   *time.Time      `json:"last_dip_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func listingView(l model.Listing) listingBody {
	return listingBody{
		ID:          l.ID,
		ExternalID:  l.ExternalID,
		SKU:         l.SKU,
		Grade:       l.Grade,
		CountryCode: l.CountryCode,
		Currency:    l.Currency,
		Price:       l.Price,
		BasePrice:   l.BasePrice,
		Quantity:    l.Quantity,
		State:       l.State,
		LastDipAt:   l.LastDipAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

type offerBody struct {
	ID           uuid.UUID       `json:"id"`
	ListingID    uuid.UUID       `json:"listing_id"`
	CompetitorID *string         `json:"competitor_id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	IsWinner     bool            `json:"is_winner"`
	IsTest       bool            `json:"is_test"`
	Timestamp    time.Time       `json:"timestamp"`
}

func offerView(o model.CompetitorOffer) offerBody {
	return offerBody{
		ID:           o.ID,
		ListingID:    o.ListingID,
		CompetitorID: o.CompetitorID,
		Name:         o.Name,
		Price:        o.Price,
		Currency:     o.Currency,
		IsWinner:     o.IsWinner,
		IsTest:       o.IsTest,
		Timestamp:    o.Timestamp,
	}
}

type historyBody struct {
	ID              uuid.UUID        `json:"id"`
	ListingID       uuid.UUID        `json:"listing_id"`
	Price           decimal.Decimal  `json:"price"`
	Currency        string           `json:"currency"`
	CompetitorName  string           `json:"competitor_name"`
	CompetitorPrice *decimal.Decimal `json:"competitor_price"`
	FloorPrice      decimal.Decimal  `json:"floor_price"`
	IsWinner        bool             `json:"is_winner"`
	Kind            string           `json:"kind"`
	Published       bool             `json:"published"`
	Timestamp       time.Time        `json:"timestamp"`
}

func historyView(e model.PriceHistoryEntry) historyBody {
	return historyBody{
		ID:              e.ID,
		ListingID:       e.ListingID,
		Price:           e.Price,
		Currency:        e.Currency,
		CompetitorName:  e.CompetitorName,
		CompetitorPrice: e.CompetitorPrice,
		FloorPrice:      e.FloorPrice,
		IsWinner:        e.IsWinner,
		Kind:            string(e.Kind),
		Published:       e.Published,
		Timestamp:       e.Timestamp,
	}
}

type aggregateBody struct {
	ListingID          *uuid.UUID       `json:"listing_id"`
	Since              time.Time        `json:"since"`
	Until              time.Time        `json:"until"`
	MaxOwnPrice        *decimal.Decimal `json:"max_own_price"`
	MaxCompetitorPrice *decimal.Decimal `json:"max_competitor_price"`
	Entries            int              `json:"entries"`
}

type bucketBody struct {
	Name             string    `json:"name"`
	MaxTokens        int       `json:"max_tokens"`
	RefillIntervalMS int64     `json:"refill_interval_ms"`
	CurrentTokens    int       `json:"current_tokens"`
	LastRefillTime   time.Time `json:"last_refill_time"`
	NextRefillTime   time.Time `json:"next_refill_time"`
}

func bucketView(b model.RateLimitBucket) bucketBody {
	return bucketBody{
		Name:             b.Name,
		MaxTokens:        b.MaxTokens,
		RefillIntervalMS: b.RefillInterval.Milliseconds(),
		CurrentTokens:    b.CurrentTokens,
		LastRefillTime:   b.LastRefillTime,
		NextRefillTime:   b.NextRefillTime,
	}
}

type jobBody struct {
	JobName   string     `json:"job_name"`
	CadenceMS int64      `json:"cadence_ms"`
	IsRunning bool       `json:"is_running"`
	NextRun   time.Time  `json:"next_run"`
	LastRun   *time.Time `json:"last_run"`
	LastError string     `json:"last_error"`
}

func jobView(st model.ScheduledJobStatus) jobBody {
	return jobBody{
		JobName:   st.JobName,
		CadenceMS: st.Cadence.Milliseconds(),
		IsRunning: st.IsRunning,
		NextRun:   st.NextRun,
		LastRun:   st.LastRun,
		LastError: st.LastError,
	}
}

type resultBody struct {
	ListingID    uuid.UUID       `json:"listing_id"`
	OldPrice     decimal.Decimal `json:"old_price"`
	Price        decimal.Decimal `json:"price"`
	Reference    decimal.Decimal `json:"reference"`
	Floor        decimal.Decimal `json:"floor"`
	Target       decimal.Decimal `json:"target"`
	UsedFallback bool            `json:"used_fallback"`
	Unchanged    bool            `json:"unchanged"`
	Competitor   *offerBody      `json:"competitor"`
	Entry        historyBody     `json:"entry"`
}

func resultView(r pricing.Result) resultBody {
	out := resultBody{
		ListingID:    r.Listing.ID,
		OldPrice:     r.OldPrice,
		Price:        r.Decision.Price,
		Reference:    r.Decision.Reference,
		Floor:        r.Decision.Floor,
		Target:       r.Decision.Target,
		UsedFallback: r.Decision.UsedFallback,
		Unchanged:    r.Decision.Unchanged,
		Entry:        historyView(r.Entry),
	}
	if r.Competitor != nil {
		o := offerView(*r.Competitor)
		out.Competitor = &o
	}
	return out
}

func mapSlice[T, V any](in []T, f func(T) V) []V {
	out := make([]V, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}
