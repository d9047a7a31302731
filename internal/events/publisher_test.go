package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/rickgao/bm-repricer/internal/model"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishPriceChanged(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w, "prices", "orders", nil)

	id := uuid.New()
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	err := p.PublishPriceChanged(context.Background(), PriceChanged{
		ListingID: id,
		SKU:       "IPH13-128",
		OldPrice:  decimal.RequireFromString("100.00"),
		NewPrice:  decimal.RequireFromString("99.00"),
		Kind:      model.KindEvaluation,
		At:        at,
	})
	if err != nil {
		t.Fatalf("PublishPriceChanged() error = %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(w.msgs))
	}

	msg := w.msgs[0]
	if msg.Topic != "prices" {
		t.Errorf("Topic = %q, want %q", msg.Topic, "prices")
	}
	if string(msg.Key) != id.String() {
		t.Errorf("Key = %q, want %q", msg.Key, id.String())
	}
	if !msg.Time.Equal(at) {
		t.Errorf("Time = %v, want %v", msg.Time, at)
	}

	var decoded map[string]any
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if decoded["new_price"] != "99" {
		t.Errorf("new_price = %v, want %q", decoded["new_price"], "99")
	}
	if decoded["kind"] != "evaluation" {
		t.Errorf("kind = %v, want evaluation", decoded["kind"])
	}
}

func TestPublishOrders(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w, "prices", "orders", nil)

	if err := p.PublishOrders(context.Background(), nil); err != nil {
		t.Errorf("PublishOrders(nil) error = %v", err)
	}
	if len(w.msgs) != 0 {
		t.Errorf("empty batch wrote %d messages", len(w.msgs))
	}

	err := p.PublishOrders(context.Background(), []OrderSynced{
		{OrderID: "o1", Status: "TO_SEND"},
		{OrderID: "o2", Status: "RECEIVED"},
	})
	if err != nil {
		t.Fatalf("PublishOrders() error = %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(w.msgs))
	}
	if w.msgs[1].Topic != "orders" || string(w.msgs[1].Key) != "o2" {
		t.Errorf("msg[1] topic=%q key=%q", w.msgs[1].Topic, w.msgs[1].Key)
	}
}

func TestPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewPublisher(w, "prices", "orders", nil)

	err := p.PublishPriceChanged(context.Background(), PriceChanged{ListingID: uuid.New()})
	if err == nil {
		t.Fatal("PublishPriceChanged() error = nil")
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close() = %v, closed = %v", err, w.closed)
	}
}
