package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/bm-repricer/internal/model"
)

// Store holds all repricer state in memory.
type Store struct {
	mu sync.RWMutex

	listings   map[uuid.UUID]model.Listing
	byExternal map[string]uuid.UUID
	params     map[model.ParamsKey]model.PricingParameters
	history    []model.PriceHistoryEntry
	testOffers map[uuid.UUID][]model.CompetitorOffer
	buckets    map[string]model.RateLimitBucket
	jobs       map[string]model.ScheduledJobStatus
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		listings:   make(map[uuid.UUID]model.Listing),
		byExternal: make(map[string]uuid.UUID),
		params:     make(map[model.ParamsKey]model.PricingParameters),
		testOffers: make(map[uuid.UUID][]model.CompetitorOffer),
		buckets:    make(map[string]model.RateLimitBucket),
		jobs:       make(map[string]model.ScheduledJobStatus),
	}
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// -----------------------------------------------------------------------------
// Listings
// -----------------------------------------------------------------------------

// GetListing returns a listing by id.
func (s *Store) GetListing(_ context.Context, id uuid.UUID) (model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return model.Listing{}, fmt.Errorf("listing %s: %w", id, model.ErrNotFound)
	}
	return l, nil
}

// GetListingByExternalID returns a listing by marketplace id.
func (s *Store) GetListingByExternalID(_ context.Context, externalID string) (model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternal[externalID]
	if !ok {
		return model.Listing{}, fmt.Errorf("listing external_id=%s: %w", externalID, model.ErrNotFound)
	}
	return s.listings[id], nil
}

// ListListings returns all listings ordered by sku, grade, country.
func (s *Store) ListListings(_ context.Context) ([]model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SKU != b.SKU {
			return a.SKU < b.SKU
		}
		if a.Grade != b.Grade {
			return a.Grade < b.Grade
		}
		if a.CountryCode != b.CountryCode {
			return a.CountryCode < b.CountryCode
		}
		return a.ID.String() < b.ID.String()
	})
	return out, nil
}

// UpsertListing inserts or updates a listing matched by ExternalID (or ID when
// ExternalID is empty). The stored ID and LastDipAt are preserved on update.
// It returns the stored listing and whether it was created.
func (s *Store) UpsertListing(_ context.Context, l model.Listing) (model.Listing, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing model.Listing
	found := false
	if l.ExternalID != "" {
		if id, ok := s.byExternal[l.ExternalID]; ok {
			existing, found = s.listings[id]
		}
	}
	if !found && l.ID != uuid.Nil {
		existing, found = s.listings[l.ID]
	}

	if found {
		l.ID = existing.ID
		if l.LastDipAt == nil {
			l.LastDipAt = existing.LastDipAt
		}
	} else if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}

	s.listings[l.ID] = l
	if l.ExternalID != "" {
		s.byExternal[l.ExternalID] = l.ID
	}
	return l, !found, nil
}

// UpdateListingPrice records a newly published price.
func (s *Store) UpdateListingPrice(_ context.Context, id uuid.UUID, price decimal.Decimal, lastDipAt *time.Time, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return fmt.Errorf("listing %s: %w", id, model.ErrNotFound)
	}
	l.Price = price
	if lastDipAt != nil {
		t := *lastDipAt
		l.LastDipAt = &t
	}
	l.UpdatedAt = at
	s.listings[id] = l
	return nil
}

// -----------------------------------------------------------------------------
// Pricing parameters
// -----------------------------------------------------------------------------

// GetParameters returns the parameters for a key.
func (s *Store) GetParameters(_ context.Context, key model.ParamsKey) (model.PricingParameters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.params[key]
	if !ok {
		return model.PricingParameters{}, fmt.Errorf("parameters %v: %w", key, model.ErrNotFound)
	}
	return p, nil
}

// ListParameters returns all parameter rows.
func (s *Store) ListParameters(_ context.Context) ([]model.PricingParameters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PricingParameters, 0, len(s.params))
	for _, p := range s.params {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key(), out[j].Key()
		if a.SKU != b.SKU {
			return a.SKU < b.SKU
		}
		if a.Grade != b.Grade {
			return a.Grade < b.Grade
		}
		return a.CountryCode < b.CountryCode
	})
	return out, nil
}

// UpsertParameters stores a parameters row.
func (s *Store) UpsertParameters(_ context.Context, p model.PricingParameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[p.Key()] = p
	return nil
}

// -----------------------------------------------------------------------------
// Price history
// -----------------------------------------------------------------------------

// AppendHistory appends an immutable entry.
func (s *Store) AppendHistory(_ context.Context, e model.PriceHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	s.history = append(s.history, e)
	return nil
}

// ListHistory returns a page of a listing's entries, newest first, and the
// total number of entries for the listing.
func (s *Store) ListHistory(_ context.Context, listingID uuid.UUID, limit, offset int) ([]model.PriceHistoryEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Walk backwards so equal timestamps keep newest-inserted first.
	var matched []model.PriceHistoryEntry
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].ListingID == listingID {
			matched = append(matched, s.history[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	if offset >= total {
		return []model.PriceHistoryEntry{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

// AggregateHistory computes maxima over [since, until). A nil listingID
// aggregates across all listings.
func (s *Store) AggregateHistory(_ context.Context, listingID *uuid.UUID, since, until time.Time) (model.PriceAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := model.PriceAggregate{ListingID: listingID, Since: since, Until: until}
	for _, e := range s.history {
		if listingID != nil && e.ListingID != *listingID {
			continue
		}
		if e.Timestamp.Before(since) || !e.Timestamp.Before(until) {
			continue
		}
		agg.Entries++
		if agg.MaxOwnPrice == nil || e.Price.GreaterThan(*agg.MaxOwnPrice) {
			p := e.Price
			agg.MaxOwnPrice = &p
		}
		if e.CompetitorPrice != nil && (agg.MaxCompetitorPrice == nil || e.CompetitorPrice.GreaterThan(*agg.MaxCompetitorPrice)) {
			p := *e.CompetitorPrice
			agg.MaxCompetitorPrice = &p
		}
	}
	return agg, nil
}

// -----------------------------------------------------------------------------
// Test competitors
// -----------------------------------------------------------------------------

// AddTestOffer stores a test competitor.
func (s *Store) AddTestOffer(_ context.Context, o model.CompetitorOffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.IsTest = true
	s.testOffers[o.ListingID] = append(s.testOffers[o.ListingID], o)
	return nil
}

// ListTestOffers returns a listing's test competitors in insertion order.
func (s *Store) ListTestOffers(_ context.Context, listingID uuid.UUID) ([]model.CompetitorOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.CompetitorOffer(nil), s.testOffers[listingID]...), nil
}

// ClearTestOffers removes a listing's test competitors.
func (s *Store) ClearTestOffers(_ context.Context, listingID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.testOffers[listingID])
	delete(s.testOffers, listingID)
	return n, nil
}

// -----------------------------------------------------------------------------
// Operational state
// -----------------------------------------------------------------------------

// SaveBucket persists a bucket configuration.
func (s *Store) SaveBucket(_ context.Context, b model.RateLimitBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[b.Name] = b
	return nil
}

// ListBuckets returns persisted bucket configurations by name.
func (s *Store) ListBuckets(_ context.Context) ([]model.RateLimitBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.RateLimitBucket, 0, len(s.buckets))
	for _, b := range s.buckets {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SaveJobStatus persists a job status.
func (s *Store) SaveJobStatus(_ context.Context, st model.ScheduledJobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[st.JobName] = st
	return nil
}

// ListJobStatuses returns persisted job statuses by name.
func (s *Store) ListJobStatuses(_ context.Context) ([]model.ScheduledJobStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ScheduledJobStatus, 0, len(s.jobs))
	for _, st := range s.jobs {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobName < out[j].JobName })
	return out, nil
}
