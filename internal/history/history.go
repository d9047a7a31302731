// Package history serves the append-only price audit log.
//
// There is no mutation path here: entries are only ever appended by the
// pricing engine. This package pages and aggregates them for the control
// surface.
package history

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/bm-repricer/internal/model"
)

// Paging limits.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// DefaultWindow is the aggregate window when since is not given.
const DefaultWindow = 24 * time.Hour

// Store reads history entries.
type Store interface {
	ListHistory(ctx context.Context, listingID uuid.UUID, limit, offset int) ([]model.PriceHistoryEntry, int, error)
	AggregateHistory(ctx context.Context, listingID *uuid.UUID, since, until time.Time) (model.PriceAggregate, error)
}

// Page is one page of entries, newest first.
type Page struct {
	Items    []model.PriceHistoryEntry
	Total    int
	Page     int
	PageSize int
}

// Service queries the audit log.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a Service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// List returns page (1-based) of a listing's entries. Zero page or pageSize
// select the defaults; pageSize is capped at MaxPageSize.
func (s *Service) List(ctx context.Context, listingID uuid.UUID, page, pageSize int) (Page, error) {
	if page < 0 {
		return Page{}, model.NewValidationError("page", "must be >= 1")
	}
	if pageSize < 0 {
		return Page{}, model.NewValidationError("page_size", "must be >= 1")
	}
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page > math.MaxInt/pageSize {
		return Page{}, model.NewValidationError("page", "is too large")
	}

	items, total, err := s.store.ListHistory(ctx, listingID, pageSize, (page-1)*pageSize)
	if err != nil {
		return Page{}, fmt.Errorf("list history: %w", err)
	}
	if items == nil {
		items = []model.PriceHistoryEntry{}
	}
	return Page{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// Aggregate returns max own and competitor prices over [since, until). A
// zero until means now; a zero since means DefaultWindow before until. A nil
// listingID aggregates over every listing.
func (s *Service) Aggregate(ctx context.Context, listingID *uuid.UUID, since, until time.Time) (model.PriceAggregate, error) {
	if until.IsZero() {
		until = s.now()
	}
	if since.IsZero() {
		since = until.Add(-DefaultWindow)
	}
	if !since.Before(until) {
		return model.PriceAggregate{}, model.NewValidationError("since", "must be before until")
	}

	agg, err := s.store.AggregateHistory(ctx, listingID, since, until)
	if err != nil {
		return model.PriceAggregate{}, fmt.Errorf("aggregate history: %w", err)
	}
	return agg, nil
}
