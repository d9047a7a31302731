package listing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/bm-repricer/internal/api"
	"github.com/rickgao/bm-repricer/internal/model"
)

// Source lists marketplace listings. Implemented by *api.Client.
type Source interface {
	GetAllListings(ctx context.Context) ([]api.APIListing, error)
}

// Store upserts listings.
type Store interface {
	GetListingByExternalID(ctx context.Context, externalID string) (model.Listing, error)
	UpsertListing(ctx context.Context, l model.Listing) (model.Listing, bool, error)
}

// SyncResult summarizes one listing sync.
type SyncResult struct {
	Total   int
	Created int
	Changed int
}

// ListingSyncer mirrors marketplace listings into the store.
type ListingSyncer struct {
	source Source
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewListingSyncer creates a ListingSyncer.
func NewListingSyncer(source Source, store Store, logger *slog.Logger) *ListingSyncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListingSyncer{
		source: source,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Run implements scheduler.Handler.
func (s *ListingSyncer) Run(ctx context.Context) error {
	_, err := s.Sync(ctx)
	return err
}

// Sync fetches every listing and upserts it.
func (s *ListingSyncer) Sync(ctx context.Context) (SyncResult, error) {
	start := s.now()

	apiListings, err := s.source.GetAllListings(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("fetch listings: %w", err)
	}

	res := SyncResult{Total: len(apiListings)}
	for i := range apiListings {
		l := apiListings[i].ToModel(s.now())

		existing, err := s.store.GetListingByExternalID(ctx, l.ExternalID)
		found := err == nil
		if found && !changed(existing, l) {
			continue
		}

		if _, created, err := s.store.UpsertListing(ctx, l); err != nil {
			return res, fmt.Errorf("upsert listing %s: %w", l.ExternalID, err)
		} else if created {
			res.Created++
		} else {
			res.Changed++
		}
	}

	if res.Created > 0 || res.Changed > 0 {
		s.logger.Info("listing sync found changes",
			"created", res.Created,
			"changed", res.Changed,
			"duration", s.now().Sub(start),
		)
	} else {
		s.logger.Debug("listing sync complete",
			"total_listings", res.Total,
			"duration", s.now().Sub(start),
		)
	}
	return res, nil
}

// changed reports whether any marketplace-owned field differs.
func changed(old, cur model.Listing) bool {
	return old.SKU != cur.SKU ||
		old.Grade != cur.Grade ||
		old.CountryCode != cur.CountryCode ||
		old.Currency != cur.Currency ||
		!old.Price.Equal(cur.Price) ||
		!old.BasePrice.Equal(cur.BasePrice) ||
		old.Quantity != cur.Quantity ||
		old.State != cur.State
}
