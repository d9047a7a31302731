package competitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/rickgao/bm-repricer/internal/api"
	"github.com/rickgao/bm-repricer/internal/model"
)

// Fetcher fetches live competing offers. Implemented by *api.Client.
type Fetcher interface {
	GetCompetitors(ctx context.Context, listingID string) (*api.CompetitorsResponse, error)
}

// TestOfferStore persists operator-injected test competitors.
type TestOfferStore interface {
	AddTestOffer(ctx context.Context, offer model.CompetitorOffer) error
	ListTestOffers(ctx context.Context, listingID uuid.UUID) ([]model.CompetitorOffer, error)
	ClearTestOffers(ctx context.Context, listingID uuid.UUID) (int, error)
}

// ListingGetter resolves listings by id.
type ListingGetter interface {
	GetListing(ctx context.Context, id uuid.UUID) (model.Listing, error)
}

// Cache stores real offers for a short time.
type Cache interface {
	Get(ctx context.Context, listingID uuid.UUID) ([]model.CompetitorOffer, bool, error)
	Set(ctx context.Context, listingID uuid.UUID, offers []model.CompetitorOffer) error
}

// TestCompetitorPrefix marks the CompetitorID of injected offers.
const TestCompetitorPrefix = "test:"

// DefaultFetchTimeout bounds one shared competitor fetch.
const DefaultFetchTimeout = 30 * time.Second

// Service produces competitor snapshots.
type Service struct {
	fetcher  Fetcher
	store    TestOfferStore
	listings ListingGetter
	cache    Cache
	logger   *slog.Logger
	now      func() time.Time

	fetchTimeout time.Duration
	group        singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables the offer cache.
func WithCache(c Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFetchTimeout bounds a shared fetch independently of any one caller.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a Service.
func NewService(fetcher Fetcher, store TestOfferStore, listings ListingGetter, opts ...Option) *Service {
	s := &Service{
		fetcher:  fetcher,
		store:    store,
		listings: listings,
		logger:   slog.Default(),
		now:      time.Now,

		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns every known offer for the listing: live offers plus test
// competitors. A fetch failure is returned as is (wrapping ErrExternalAPI or
// ErrRateLimitTimeout) so the caller can skip the listing.
func (s *Service) Snapshot(ctx context.Context, listing model.Listing) ([]model.CompetitorOffer, error) {
	live, err := s.liveOffers(ctx, listing)
	if err != nil {
		return nil, err
	}

	tests, err := s.store.ListTestOffers(ctx, listing.ID)
	if err != nil {
		return nil, fmt.Errorf("list test offers: %w", err)
	}

	offers := make([]model.CompetitorOffer, 0, len(live)+len(tests))
	offers = append(offers, live...)
	offers = append(offers, tests...)
	return offers, nil
}

func (s *Service) liveOffers(ctx context.Context, listing model.Listing) ([]model.CompetitorOffer, error) {
	if listing.ExternalID == "" {
		// Not yet on the marketplace; only test competitors apply.
		return nil, nil
	}

	if s.cache != nil {
		offers, ok, err := s.cache.Get(ctx, listing.ID)
		if err != nil {
			s.logger.Warn("offer cache read failed", "listing_id", listing.ID, "error", err)
		} else if ok {
			return offers, nil
		}
	}

	// Concurrent callers share one fetch, so it must not die with whichever
	// caller started it. Each caller still stops waiting on its own ctx.
	ch := s.group.DoChan(listing.ID.String(), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()

		resp, err := s.fetcher.GetCompetitors(ctx, listing.ExternalID)
		if err != nil {
			return nil, err
		}

		fetchedAt := s.now()
		offers := make([]model.CompetitorOffer, 0, len(resp.Offers))
		for i := range resp.Offers {
			offers = append(offers, resp.Offers[i].ToModel(listing.ID, fetchedAt))
		}

		if s.cache != nil {
			if err := s.cache.Set(ctx, listing.ID, offers); err != nil {
				s.logger.Warn("offer cache write failed", "listing_id", listing.ID, "error", err)
			}
		}
		return offers, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]model.CompetitorOffer), nil
	}
}

// AddTestCompetitor injects a synthetic competing offer for a listing.
func (s *Service) AddTestCompetitor(ctx context.Context, listingID uuid.UUID, name string, price decimal.Decimal) (model.CompetitorOffer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.CompetitorOffer{}, model.NewValidationError("name", "is required")
	}
	if !price.IsPositive() {
		return model.CompetitorOffer{}, model.NewValidationError("price", "must be > 0")
	}

	listing, err := s.listings.GetListing(ctx, listingID)
	if err != nil {
		return model.CompetitorOffer{}, err
	}

	id := uuid.New()
	competitorID := TestCompetitorPrefix + id.String()
	offer := model.CompetitorOffer{
		ID:           id,
		ListingID:    listing.ID,
		CompetitorID: &competitorID,
		Name:         name,
		Price:        price,
		Currency:     listing.Currency,
		IsTest:       true,
		Timestamp:    s.now(),
	}
	if err := s.store.AddTestOffer(ctx, offer); err != nil {
		return model.CompetitorOffer{}, fmt.Errorf("add test offer: %w", err)
	}

	s.logger.Info("test competitor added",
		"listing_id", listing.ID,
		"name", name,
		"price", price,
	)
	return offer, nil
}

// ClearTestCompetitors removes every test competitor of a listing and returns
// how many were removed. Real offers are untouched.
func (s *Service) ClearTestCompetitors(ctx context.Context, listingID uuid.UUID) (int, error) {
	n, err := s.store.ClearTestOffers(ctx, listingID)
	if err != nil {
		return 0, fmt.Errorf("clear test offers: %w", err)
	}
	s.logger.Info("test competitors cleared", "listing_id", listingID, "removed", n)
	return n, nil
}

// BestOffer returns the most aggressive competing offer (lowest price when
// undercutting, highest when overcutting), ignoring our own offers. Ties go to
// the most recent offer. It returns false if there is no competitor.
func BestOffer(offers []model.CompetitorOffer, mode model.PricingMode) (model.CompetitorOffer, bool) {
	var others []model.CompetitorOffer
	for _, o := range offers {
		if !o.IsOwn() {
			others = append(others, o)
		}
	}
	if len(others) == 0 {
		return model.CompetitorOffer{}, false
	}

	sort.SliceStable(others, func(i, j int) bool {
		a, b := others[i], others[j]
		if !a.Price.Equal(b.Price) {
			if mode == model.ModeOvercut {
				return a.Price.GreaterThan(b.Price)
			}
			return a.Price.LessThan(b.Price)
		}
		return a.Timestamp.After(b.Timestamp)
	})
	return others[0], true
}
