package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/rickgao/bm-repricer/internal/model"
)

// PriceChanged is emitted after a price was published to the marketplace.
type PriceChanged struct {
	ListingID   uuid.UUID       `json:"listing_id"`
	ExternalID  string          `json:"external_id"`
	SKU         string          `json:"sku"`
	Grade       string          `json:"grade"`
	CountryCode string          `json:"country"`
	OldPrice    decimal.Decimal `json:"old_price"`
	NewPrice    decimal.Decimal `json:"new_price"`
	Currency    string          `json:"currency"`
	Kind        model.EntryKind `json:"kind"`
	At          time.Time       `json:"at"`
}

// OrderSynced carries one buyback order to downstream order handling.
type OrderSynced struct {
	OrderID     string           `json:"order_id"`
	Status      string           `json:"status"`
	SKU         string           `json:"sku,omitempty"`
	Grade       string           `json:"grade,omitempty"`
	CountryCode string           `json:"country,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Currency    string           `json:"currency,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	SyncedAt    time.Time        `json:"synced_at"`
}

// MessageWriter is the subset of *kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes events to kafka.
type Publisher struct {
	writer     MessageWriter
	priceTopic string
	orderTopic string
	logger     *slog.Logger
}

// NewKafkaPublisher creates a Publisher backed by a kafka-go Writer.
func NewKafkaPublisher(brokers []string, priceTopic, orderTopic string, logger *slog.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return NewPublisher(w, priceTopic, orderTopic, logger)
}

// NewPublisher creates a Publisher on an existing writer. The writer must not
// have a fixed Topic; each message names its own.
func NewPublisher(w MessageWriter, priceTopic, orderTopic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		writer:     w,
		priceTopic: priceTopic,
		orderTopic: orderTopic,
		logger:     logger,
	}
}

// PublishPriceChanged writes one price event keyed by listing id.
func (p *Publisher) PublishPriceChanged(ctx context.Context, e PriceChanged) error {
	v, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal price event: %w", err)
	}

	msg := kafka.Message{
		Topic: p.priceTopic,
		Key:   []byte(e.ListingID.String()),
		Value: v,
		Time:  e.At,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write price event: %w", err)
	}
	return nil
}

// PublishOrders writes order events as one batch keyed by order id.
func (p *Publisher) PublishOrders(ctx context.Context, orders []OrderSynced) error {
	if len(orders) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(orders))
	for _, o := range orders {
		v, err := json.Marshal(o)
		if err != nil {
			p.logger.Warn("failed to marshal order event", "order_id", o.OrderID, "error", err)
			continue
		}
		msgs = append(msgs, kafka.Message{
			Topic: p.orderTopic,
			Key:   []byte(o.OrderID),
			Value: v,
			Time:  o.SyncedAt,
		})
	}
	if len(msgs) == 0 {
		return fmt.Errorf("no valid order events to publish")
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write order events: %w", err)
	}

	p.logger.Debug("published order events", "count", len(msgs))
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Discard drops every event. Used when kafka is disabled.
type Discard struct{}

func (Discard) PublishPriceChanged(context.Context, PriceChanged) error { return nil }
func (Discard) PublishOrders(context.Context, []OrderSynced) error      { return nil }
func (Discard) Close() error                                            { return nil }
