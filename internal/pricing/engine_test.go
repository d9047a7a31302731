package pricing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/bm-repricer/internal/api"
	"github.com/rickgao/bm-repricer/internal/database/memstore"
	"github.com/rickgao/bm-repricer/internal/events"
	"github.com/rickgao/bm-repricer/internal/model"
)

type fakePublisher struct {
	mu    sync.Mutex
	calls []decimal.Decimal
	bulk  [][]api.PriceUpdate
	err   error
}

func (p *fakePublisher) UpdatePrice(_ context.Context, _ string, price decimal.Decimal, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.calls = append(p.calls, price)
	return nil
}

func (p *fakePublisher) BulkUpdatePrices(_ context.Context, items []api.PriceUpdate) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.bulk = append(p.bulk, items)
	return 7, nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// offerMap serves fixed offers per listing.
type offerMap struct {
	mu     sync.Mutex
	offers map[uuid.UUID][]model.CompetitorOffer
	err    error
}

func (m *offerMap) Snapshot(_ context.Context, l model.Listing) ([]model.CompetitorOffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.offers[l.ID], nil
}

func (m *offerMap) set(id uuid.UUID, prices ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offers == nil {
		m.offers = make(map[uuid.UUID][]model.CompetitorOffer)
	}
	var offers []model.CompetitorOffer
	for i, p := range prices {
		cid := string(rune('a' + i))
		offers = append(offers, model.CompetitorOffer{ListingID: id, CompetitorID: &cid, Name: "seller-" + cid, Price: dec(p)})
	}
	m.offers[id] = offers
}

// countingParams counts parameter reads.
type countingParams struct {
	*memstore.Store
	reads atomic.Int32
}

func (c *countingParams) GetParameters(ctx context.Context, key model.ParamsKey) (model.PricingParameters, error) {
	c.reads.Add(1)
	return c.Store.GetParameters(ctx, key)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []events.PriceChanged
}

func (r *recordingEvents) PublishPriceChanged(_ context.Context, e events.PriceChanged) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// brokenPriceStore fails every price write while reads still succeed.
type brokenPriceStore struct {
	*memstore.Store
}

func (brokenPriceStore) UpdateListingPrice(context.Context, uuid.UUID, decimal.Decimal, *time.Time, time.Time) error {
	return errors.New("db down")
}

type harness struct {
	store     *memstore.Store
	params    *countingParams
	offers    *offerMap
	publisher *fakePublisher
	events    *recordingEvents
	engine    *Engine
	now       time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     memstore.New(),
		offers:    &offerMap{},
		publisher: &fakePublisher{},
		events:    &recordingEvents{},
		now:       time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	h.params = &countingParams{Store: h.store}
	h.engine = NewEngine(DefaultConfig(), h.store, h.params, h.store, h.offers, h.publisher,
		WithEvents(h.events),
		WithClock(func() time.Time { return h.now }),
	)
	return h
}

// breakPriceWrites rebuilds the engine over a listing store whose price
// writes fail.
func (h *harness) breakPriceWrites() {
	h.engine = NewEngine(DefaultConfig(), brokenPriceStore{h.store}, h.params, h.store, h.offers, h.publisher,
		WithEvents(h.events),
		WithClock(func() time.Time { return h.now }),
	)
}

func (h *harness) listing(t *testing.T, ext, price, base string, withParams bool) model.Listing {
	t.Helper()
	ctx := context.Background()
	l, _, err := h.store.UpsertListing(ctx, model.Listing{
		ExternalID:  ext,
		SKU:         "IPH13-128",
		Grade:       "A-" + ext,
		CountryCode: "fr-fr",
		Currency:    "EUR",
		Price:       dec(price),
		BasePrice:   dec(base),
		State:       model.PublicationOnline,
	})
	if err != nil {
		t.Fatalf("UpsertListing: %v", err)
	}
	if withParams {
		p := scenarioParams()
		p.Grade = l.Grade
		if err := h.store.UpsertParameters(ctx, p); err != nil {
			t.Fatalf("UpsertParameters: %v", err)
		}
	}
	return l
}

func (h *harness) history(t *testing.T, id uuid.UUID) []model.PriceHistoryEntry {
	t.Helper()
	entries, _, err := h.store.ListHistory(context.Background(), id, 0, 0)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	return entries
}

func TestEvaluate_ScenarioA(t *testing.T) {
	h := newHarness(t)
	l := h.listing(t, "1", "120.00", "0", true)
	h.offers.set(l.ID, "100.00", "104.00")

	res, err := h.engine.Evaluate(context.Background(), l.ID)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !res.Decision.Price.Equal(dec("99")) {
		t.Errorf("Price = %s, want 99", res.Decision.Price)
	}
	if !res.Entry.IsWinner {
		t.Error("IsWinner = false, want true")
	}
	if h.publisher.count() != 1 {
		t.Errorf("publish calls = %d, want 1", h.publisher.count())
	}

	stored, _ := h.store.GetListing(context.Background(), l.ID)
	if !stored.Price.Equal(dec("99")) {
		t.Errorf("stored price = %s, want 99", stored.Price)
	}
	if stored.LastDipAt == nil || !stored.LastDipAt.Equal(h.now) {
		t.Errorf("LastDipAt = %v, want %v", stored.LastDipAt, h.now)
	}

	entries := h.history(t, l.ID)
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Kind != model.KindEvaluation || !e.Published || e.CompetitorName != "seller-a" {
		t.Errorf("entry = %+v", e)
	}
	if e.CompetitorPrice == nil || !e.CompetitorPrice.Equal(dec("100")) {
		t.Errorf("CompetitorPrice = %v, want 100", e.CompetitorPrice)
	}
	if !e.FloorPrice.Equal(dec("35")) {
		t.Errorf("FloorPrice = %s, want 35", e.FloorPrice)
	}

	if len(h.events.events) != 1 || !h.events.events[0].NewPrice.Equal(dec("99")) {
		t.Errorf("events = %+v", h.events.events)
	}
}

func TestEvaluate_NoOpStillAudited(t *testing.T) {
	h := newHarness(t)
	l := h.listing(t, "1", "120.00", "0", true)
	h.offers.set(l.ID, "100.00")

	for i := 0; i < 3; i++ {
		if _, err := h.engine.Evaluate(context.Background(), l.ID); err != nil {
			t.Fatalf("Evaluate() #%d error = %v", i, err)
		}
	}

	if h.publisher.count() != 1 {
		t.Errorf("publish calls = %d, want 1", h.publisher.count())
	}
	entries := h.history(t, l.ID)
	if len(entries) != 3 {
		t.Fatalf("history entries = %d, want 3", len(entries))
	}
	published := 0
	for _, e := range entries {
		if e.Published {
			published++
		}
	}
	if published != 1 {
		t.Errorf("published entries = %d, want 1", published)
	}
	if got := h.params.reads.Load(); got != 3 {
		t.Errorf("parameter reads = %d, want 3 (one per evaluation)", got)
	}
}

func TestEvaluate_ScenarioB_Fallback(t *testing.T) {
	h := newHarness(t)
	l := h.listing(t, "1", "120.00", "200", true)

	res, err := h.engine.Evaluate(context.Background(), l.ID)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !res.Decision.UsedFallback {
		t.Error("UsedFallback = false")
	}
	if !res.Decision.Price.Equal(dec("150")) {
		t.Errorf("Price = %s, want 150 (max_price rule)", res.Decision.Price)
	}
	if res.Entry.CompetitorPrice != nil {
		t.Errorf("CompetitorPrice = %v, want nil", res.Entry.CompetitorPrice)
	}
	if !res.Entry.IsWinner {
		t.Error("IsWinner = false with no competitors")
	}

	// A rise does not move last_dip_at.
	stored, _ := h.store.GetListing(context.Background(), l.ID)
	if stored.LastDipAt != nil {
		t.Errorf("LastDipAt = %v, want nil", stored.LastDipAt)
	}
}

func TestEmergencyRecover_ScenarioC(t *testing.T) {
	h := newHarness(t)
	l := h.listing(t, "1", "120.00", "0", true)
	h.offers.set(l.ID, "100.00")

	res, err := h.engine.EmergencyRecover(context.Background(), l.ID, dec("42.00"))
	if err != nil {
		t.Fatalf("EmergencyRecover() error = %v", err)
	}
	if h.publisher.count() != 1 || !h.publisher.calls[0].Equal(dec("42")) {
		t.Errorf("publish calls = %v, want [42]", h.publisher.calls)
	}
	if res.Entry.Kind != model.KindRecovery {
		t.Errorf("Kind = %q, want %q", res.Entry.Kind, model.KindRecovery)
	}

	entries := h.history(t, l.ID)
	if len(entries) != 1 || entries[0].Kind != model.KindRecovery || !entries[0].Published {
		t.Errorf("entries = %+v", entries)
	}
	stored, _ := h.store.GetListing(context.Background(), l.ID)
	if !stored.Price.Equal(dec("42")) || stored.LastDipAt == nil {
		t.Errorf("stored = %+v", stored)
	}
}

func TestEmergencyRecover_Validation(t *testing.T) {
	h := newHarness(t)
	l := h.listing(t, "1", "120.00", "0", true)

	for _, p := range []string{"0", "-5"} {
		if _, err := h.engine.EmergencyRecover(context.Background(), l.ID, dec(p)); !errors.Is(err, model.ErrValidation) {
			t.Errorf("EmergencyRecover(%s) error = %v, want ErrValidation", p, err)
		}
	}
	if h.publisher.count() != 0 || len(h.history(t, l.ID)) != 0 {
		t.Error("rejected recovery mutated state")
	}
}

func TestEmergencyRecoverBulk(t *testing.T) {
	h := newHarness(t)
	a := h.listing(t, "1", "120.00", "0", false)
	b := h.listing(t, "2", "80.00", "0", false)

	taskID, results, err := h.engine.EmergencyRecoverBulk(context.Background(), []Recovery{
		{ListingID: a.ID, Price: dec("60")},
		{ListingID: b.ID, Price: dec("90")},
	})
	if err != nil {
		t.Fatalf("EmergencyRecoverBulk() error = %v", err)
	}
	if taskID != 7 || len(results) != 2 {
		t.Errorf("taskID = %d, results = %d", taskID, len(results))
	}
	if len(h.publisher.bulk) != 1 || h.publisher.bulk[0][1].ListingID != "2" {
		t.Errorf("bulk = %+v", h.publisher.bulk)
	}
	if len(h.history(t, a.ID)) != 1 || len(h.history(t, b.ID)) != 1 {
		t.Error("each recovered listing should have one entry")
	}
}

func TestEvaluate_StoreFailureAfterPublishIsAudited(t *testing.T) {
	h := newHarness(t)
	l := h.listing(t, "1", "120.00", "0", true)
	h.offers.set(l.ID, "100.00", "104.00")
	h.breakPriceWrites()

	res, err := h.engine.Evaluate(context.Background(), l.ID)
	if err == nil {
		t.Fatal("Evaluate() error = nil, want store error")
	}
	if h.publisher.count() != 1 {
		t.Errorf("publish calls = %d, want 1", h.publisher.count())
	}
	if !res.Entry.Published || !res.Decision.Price.Equal(dec("99")) {
		t.Errorf("result = %+v", res)
	}
	entries := h.history(t, l.ID)
	if len(entries) != 1 || !entries[0].Published || !entries[0].Price.Equal(dec("99")) {
		t.Errorf("entries = %+v, want one published entry at 99", entries)
	}
}

func TestEmergencyRecover_StoreFailureIsAudited(t *testing.T) {
	h := newHarness(t)
	l := h.listing(t, "1", "120.00", "0", false)
	h.breakPriceWrites()

	if _, err := h.engine.EmergencyRecover(context.Background(), l.ID, dec("42")); err == nil {
		t.Fatal("EmergencyRecover() error = nil, want store error")
	}
	entries := h.history(t, l.ID)
	if len(entries) != 1 || entries[0].Kind != model.KindRecovery {
		t.Errorf("entries = %+v, want one recovery entry", entries)
	}
}

func TestEmergencyRecoverBulk_StoreFailureAuditsEveryItem(t *testing.T) {
	h := newHarness(t)
	a := h.listing(t, "1", "120.00", "0", false)
	b := h.listing(t, "2", "80.00", "0", false)
	c := h.listing(t, "3", "50.00", "0", false)
	h.breakPriceWrites()

	taskID, results, err := h.engine.EmergencyRecoverBulk(context.Background(), []Recovery{
		{ListingID: a.ID, Price: dec("60")},
		{ListingID: b.ID, Price: dec("90")},
		{ListingID: c.ID, Price: dec("45")},
	})
	if err == nil {
		t.Fatal("EmergencyRecoverBulk() error = nil, want joined store errors")
	}
	if taskID != 7 {
		t.Errorf("taskID = %d, want 7", taskID)
	}
	if len(results) != 3 {
		t.Errorf("results = %d, want 3", len(results))
	}
	for _, id := range []uuid.UUID{a.ID, b.ID, c.ID} {
		if n := len(h.history(t, id)); n != 1 {
			t.Errorf("history(%s) = %d entries, want 1", id, n)
		}
	}
}

func TestProbe_NeverPublishes(t *testing.T) {
	h := newHarness(t)
	l := h.listing(t, "1", "120.00", "0", true)
	h.offers.set(l.ID, "100.00")

	res, err := h.engine.Probe(context.Background(), l.ID, dec("99"))
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if !res.Decision.Unchanged {
		t.Error("Unchanged = false for a hypothetical equal to the computed price")
	}
	if h.publisher.count() != 0 {
		t.Errorf("publish calls = %d, want 0", h.publisher.count())
	}
	entries := h.history(t, l.ID)
	if len(entries) != 1 || entries[0].Kind != model.KindProbe || entries[0].Published {
		t.Errorf("entries = %+v", entries)
	}
	stored, _ := h.store.GetListing(context.Background(), l.ID)
	if !stored.Price.Equal(dec("120")) {
		t.Errorf("stored price = %s, want unchanged 120", stored.Price)
	}

	if _, err := h.engine.Probe(context.Background(), l.ID, dec("0")); !errors.Is(err, model.ErrValidation) {
		t.Errorf("Probe(0) error = %v, want ErrValidation", err)
	}
}

func TestEvaluate_Skips(t *testing.T) {
	t.Run("missing configuration", func(t *testing.T) {
		h := newHarness(t)
		l := h.listing(t, "1", "120.00", "0", false)

		_, err := h.engine.Evaluate(context.Background(), l.ID)
		if !errors.Is(err, model.ErrConfigurationMissing) {
			t.Errorf("error = %v, want ErrConfigurationMissing", err)
		}
		if len(h.history(t, l.ID)) != 0 || h.publisher.count() != 0 {
			t.Error("skip mutated state")
		}
	})

	t.Run("upstream failure", func(t *testing.T) {
		h := newHarness(t)
		l := h.listing(t, "1", "120.00", "0", true)
		h.offers.err = &api.APIError{StatusCode: 503}

		_, err := h.engine.Evaluate(context.Background(), l.ID)
		if !errors.Is(err, model.ErrExternalAPI) {
			t.Errorf("error = %v, want ErrExternalAPI", err)
		}
		if len(h.history(t, l.ID)) != 0 {
			t.Error("skip wrote history")
		}
	})

	t.Run("publish failure", func(t *testing.T) {
		h := newHarness(t)
		l := h.listing(t, "1", "120.00", "0", true)
		h.offers.set(l.ID, "100")
		h.publisher.err = model.ErrRateLimitTimeout

		_, err := h.engine.Evaluate(context.Background(), l.ID)
		if !errors.Is(err, model.ErrRateLimitTimeout) {
			t.Errorf("error = %v, want ErrRateLimitTimeout", err)
		}
		stored, _ := h.store.GetListing(context.Background(), l.ID)
		if !stored.Price.Equal(dec("120")) {
			t.Errorf("stored price = %s, want 120", stored.Price)
		}
	})

	t.Run("unsatisfiable parameters", func(t *testing.T) {
		h := newHarness(t)
		l := h.listing(t, "1", "120.00", "0", true)
		h.offers.set(l.ID, "1000")

		_, err := h.engine.Evaluate(context.Background(), l.ID)
		if !errors.Is(err, model.ErrValidation) {
			t.Errorf("error = %v, want ErrValidation", err)
		}
	})
}

func TestSweep_ContinuesPastFailures(t *testing.T) {
	h := newHarness(t)
	ok1 := h.listing(t, "1", "120.00", "0", true)
	missing := h.listing(t, "2", "120.00", "0", false)
	ok2 := h.listing(t, "3", "120.00", "0", true)
	offline := h.listing(t, "4", "120.00", "0", true)
	offline.State = model.PublicationOffline
	h.store.UpsertListing(context.Background(), offline)

	h.offers.set(ok1.ID, "100")
	h.offers.set(ok2.ID, "110")

	err := h.engine.Sweep(context.Background())
	if !errors.Is(err, model.ErrConfigurationMissing) {
		t.Errorf("Sweep() error = %v, want ErrConfigurationMissing joined", err)
	}
	if h.publisher.count() != 2 {
		t.Errorf("publish calls = %d, want 2", h.publisher.count())
	}
	if len(h.history(t, ok1.ID)) != 1 || len(h.history(t, ok2.ID)) != 1 {
		t.Error("healthy listings were not evaluated")
	}
	if len(h.history(t, missing.ID)) != 0 || len(h.history(t, offline.ID)) != 0 {
		t.Error("skipped listings have history")
	}
}

func TestSweep_AllHealthy(t *testing.T) {
	h := newHarness(t)
	for _, ext := range []string{"1", "2", "3", "4", "5", "6"} {
		l := h.listing(t, ext, "120.00", "0", true)
		h.offers.set(l.ID, "100")
	}
	if err := h.engine.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if h.publisher.count() != 6 {
		t.Errorf("publish calls = %d, want 6", h.publisher.count())
	}
}
