package listing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/bm-repricer/internal/api"
	"github.com/rickgao/bm-repricer/internal/events"
)

// OrderSource lists buyback orders. Implemented by *api.Client.
type OrderSource interface {
	GetAllOrders(ctx context.Context) ([]api.BuybackOrder, error)
}

// OrderPublisher forwards orders. Implemented by *events.Publisher.
type OrderPublisher interface {
	PublishOrders(ctx context.Context, orders []events.OrderSynced) error
}

// OrderSyncer forwards new or modified buyback orders to kafka.
type OrderSyncer struct {
	source    OrderSource
	publisher OrderPublisher
	logger    *slog.Logger
	now       func() time.Time

	mu   sync.Mutex
	seen map[string]string // order id -> status+modification stamp
}

// NewOrderSyncer creates an OrderSyncer.
func NewOrderSyncer(source OrderSource, publisher OrderPublisher, logger *slog.Logger) *OrderSyncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderSyncer{
		source:    source,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		seen:      make(map[string]string),
	}
}

// Run implements scheduler.Handler.
func (s *OrderSyncer) Run(ctx context.Context) error {
	_, err := s.Sync(ctx)
	return err
}

// Sync publishes orders not seen since the last successful sync and returns
// how many were published.
func (s *OrderSyncer) Sync(ctx context.Context) (int, error) {
	orders, err := s.source.GetAllOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch orders: %w", err)
	}

	now := s.now()
	var out []events.OrderSynced
	stamps := make(map[string]string, len(orders))

	s.mu.Lock()
	for _, o := range orders {
		stamp := o.Status + "@" + o.ModifiedAt.UTC().Format(time.RFC3339Nano)
		stamps[o.OrderID] = stamp
		if s.seen[o.OrderID] == stamp {
			continue
		}
		out = append(out, toEvent(o, now))
	}
	s.mu.Unlock()

	if err := s.publisher.PublishOrders(ctx, out); err != nil {
		return 0, fmt.Errorf("publish orders: %w", err)
	}

	// Only remember orders once they were delivered.
	s.mu.Lock()
	for id, stamp := range stamps {
		s.seen[id] = stamp
	}
	s.mu.Unlock()

	s.logger.Info("order sync complete",
		"orders", len(orders),
		"published", len(out),
	)
	return len(out), nil
}

func toEvent(o api.BuybackOrder, now time.Time) events.OrderSynced {
	e := events.OrderSynced{
		OrderID:     o.OrderID,
		Status:      o.Status,
		SKU:         o.ListingSKU,
		Grade:       o.Grade,
		CountryCode: o.CountryCode,
		CreatedAt:   o.CreatedAt,
		SyncedAt:    now,
	}
	if o.Price != nil {
		p := o.Price.Amount
		e.Price = &p
		e.Currency = o.Price.Currency
	}
	return e
}
