package api

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/bm-repricer/internal/model"
)

// PublicationStateName maps the wire publication state to a model state.
func PublicationStateName(state int) string {
	switch state {
	case StateOnline:
		return model.PublicationOnline
	case StatePending, StateMissingInfo:
		return model.PublicationPending
	default:
		return model.PublicationOffline
	}
}

// ExternalID returns the listing id as used in URL paths.
func (l *APIListing) ExternalID() string {
	return strconv.FormatInt(l.ListingID, 10)
}

// ToModel converts an APIListing to model.Listing. The caller assigns ID and
// LastDipAt, which the marketplace does not know about.
func (l *APIListing) ToModel(now time.Time) model.Listing {
	base := l.Price
	if l.MinPrice.Valid && l.MinPrice.Decimal.IsPositive() {
		base = l.MinPrice.Decimal
	}

	return model.Listing{
		ExternalID:  l.ExternalID(),
		SKU:         l.SKU,
		Grade:       l.Grade,
		CountryCode: l.CountryCode,
		Currency:    l.Currency,
		Price:       l.Price,
		BasePrice:   base,
		Quantity:    l.Quantity,
		State:       PublicationStateName(l.PublicationState),
		UpdatedAt:   now,
	}
}

// ToModel converts an APIOffer to a model.CompetitorOffer for the given listing.
// Our own offer gets a nil CompetitorID.
func (o *APIOffer) ToModel(listingID uuid.UUID, fetchedAt time.Time) model.CompetitorOffer {
	offer := model.CompetitorOffer{
		ID:        uuid.New(),
		ListingID: listingID,
		Name:      o.SellerName,
		Price:     o.Price.Amount,
		Currency:  o.Price.Currency,
		IsWinner:  o.IsWinning,
		Timestamp: o.UpdatedAt,
	}
	if offer.Timestamp.IsZero() {
		offer.Timestamp = fetchedAt
	}
	if !o.IsOwn {
		id := o.SellerID
		offer.CompetitorID = &id
	}
	return offer
}
