package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/bm-repricer/internal/api"
	"github.com/rickgao/bm-repricer/internal/competitor"
	"github.com/rickgao/bm-repricer/internal/events"
	"github.com/rickgao/bm-repricer/internal/model"
)

// ListingStore reads and updates listings.
type ListingStore interface {
	GetListing(ctx context.Context, id uuid.UUID) (model.Listing, error)
	ListListings(ctx context.Context) ([]model.Listing, error)
	UpdateListingPrice(ctx context.Context, id uuid.UUID, price decimal.Decimal, lastDipAt *time.Time, at time.Time) error
}

// ParamsStore reads pricing parameters.
type ParamsStore interface {
	GetParameters(ctx context.Context, key model.ParamsKey) (model.PricingParameters, error)
}

// HistoryWriter appends audit entries.
type HistoryWriter interface {
	AppendHistory(ctx context.Context, e model.PriceHistoryEntry) error
}

// Snapshotter returns all known offers for a listing.
type Snapshotter interface {
	Snapshot(ctx context.Context, listing model.Listing) ([]model.CompetitorOffer, error)
}

// PricePublisher publishes prices to the marketplace through the rate limiter.
// Implemented by *api.Client.
type PricePublisher interface {
	UpdatePrice(ctx context.Context, listingID string, price decimal.Decimal, currency string) error
	BulkUpdatePrices(ctx context.Context, items []api.PriceUpdate) (int64, error)
}

// EventPublisher emits price change events.
type EventPublisher interface {
	PublishPriceChanged(ctx context.Context, e events.PriceChanged) error
}

// Observer receives decision outcomes. Implemented by internal/metrics.
type Observer interface {
	ObserveDecision(outcome string)
}

// Decision outcomes reported to the Observer.
const (
	OutcomePublished      = "published"
	OutcomeUnchanged      = "unchanged"
	OutcomeProbe          = "probe"
	OutcomeRecovery       = "recovery"
	OutcomeSkippedConfig  = "skipped_config"
	OutcomeSkippedAPI     = "skipped_api"
	OutcomeSkippedInvalid = "skipped_invalid"
	OutcomeFailed         = "failed"
)

// Result describes one evaluation, probe, or recovery.
type Result struct {
	Listing    model.Listing
	OldPrice   decimal.Decimal
	Decision   Decision
	Competitor *model.CompetitorOffer
	Entry      model.PriceHistoryEntry
}

// Config holds engine settings.
type Config struct {
	Concurrency int    // Max listings evaluated in parallel by Sweep
	Currency    string // Used when a listing has no currency
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		Currency:    "EUR",
	}
}

// Engine evaluates and publishes prices.
type Engine struct {
	cfg       Config
	listings  ListingStore
	params    ParamsStore
	history   HistoryWriter
	snapshots Snapshotter
	publisher PricePublisher
	events    EventPublisher
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvents enables price change events.
func WithEvents(p EventPublisher) Option {
	return func(e *Engine) {
		e.events = p
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an Engine.
func NewEngine(cfg Config, listings ListingStore, params ParamsStore, history HistoryWriter,
	snapshots Snapshotter, publisher PricePublisher, opts ...Option) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	e := &Engine{
		cfg:       cfg,
		listings:  listings,
		params:    params,
		history:   history,
		snapshots: snapshots,
		publisher: publisher,
		events:    events.Discard{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate reprices one listing: compute, publish if the price changed, and
// audit. Skips (missing parameters, upstream failure, unsatisfiable
// parameters) are logged and returned without an audit entry.
func (e *Engine) Evaluate(ctx context.Context, listingID uuid.UUID) (Result, error) {
	listing, err := e.listings.GetListing(ctx, listingID)
	if err != nil {
		return Result{}, err
	}
	return e.evaluate(ctx, listing)
}

func (e *Engine) evaluate(ctx context.Context, listing model.Listing) (Result, error) {
	res, offers, err := e.decide(ctx, listing, listing.Price)
	if err != nil {
		return Result{}, err
	}

	published := false
	var storeErr error
	if !res.Decision.Unchanged {
		if err := e.publisher.UpdatePrice(ctx, listing.ExternalID, res.Decision.Price, e.currency(listing)); err != nil {
			e.skip(listing, OutcomeFailed, err)
			return Result{}, fmt.Errorf("publish listing %s: %w", listing.ID, err)
		}
		published = true
		// The price is live at this point, so the audit entry is written
		// even when the local listing row could not be updated.
		storeErr = e.recordPrice(ctx, listing, res.Decision.Price)
	}

	res.Entry = e.entry(listing, model.KindEvaluation, res.Decision.Price, res.Decision.Floor, res.Competitor, published,
		IsWinner(res.Decision.Price, offers, res.mode))
	if err := e.history.AppendHistory(ctx, res.Entry); err != nil {
		return Result{}, errors.Join(storeErr, fmt.Errorf("append history: %w", err))
	}
	if storeErr != nil {
		e.logger.Error("published price not stored",
			"listing_id", listing.ID,
			"new_price", res.Decision.Price,
			"error", storeErr,
		)
	}

	if published {
		e.observe(OutcomePublished)
		e.emit(ctx, listing, res.OldPrice, res.Decision.Price, model.KindEvaluation)
		e.logger.Info("price published",
			"listing_id", listing.ID,
			"sku", listing.SKU,
			"old_price", res.OldPrice,
			"new_price", res.Decision.Price,
			"is_winner", res.Entry.IsWinner,
		)
	} else {
		e.observe(OutcomeUnchanged)
		e.logger.Debug("price unchanged", "listing_id", listing.ID, "price", res.Decision.Price)
	}
	return res.Result, storeErr
}

// Probe runs the strategy against a hypothetical current price. It never
// publishes; the audit entry is tagged as a probe.
func (e *Engine) Probe(ctx context.Context, listingID uuid.UUID, hypothetical decimal.Decimal) (Result, error) {
	if !hypothetical.IsPositive() {
		return Result{}, model.NewValidationError("price", "must be > 0")
	}
	listing, err := e.listings.GetListing(ctx, listingID)
	if err != nil {
		return Result{}, err
	}

	res, offers, err := e.decide(ctx, listing, hypothetical)
	if err != nil {
		return Result{}, err
	}

	res.Entry = e.entry(listing, model.KindProbe, res.Decision.Price, res.Decision.Floor, res.Competitor, false,
		IsWinner(res.Decision.Price, offers, res.mode))
	if err := e.history.AppendHistory(ctx, res.Entry); err != nil {
		return Result{}, fmt.Errorf("append history: %w", err)
	}

	e.observe(OutcomeProbe)
	e.logger.Info("probe evaluated",
		"listing_id", listing.ID,
		"hypothetical", hypothetical,
		"price", res.Decision.Price,
		"floor", res.Decision.Floor,
	)
	return res.Result, nil
}

// EmergencyRecover publishes an operator-given price directly, bypassing the
// strategy and its bounds. The call still goes through the rate limiter.
func (e *Engine) EmergencyRecover(ctx context.Context, listingID uuid.UUID, price decimal.Decimal) (Result, error) {
	if !price.IsPositive() {
		return Result{}, model.NewValidationError("price", "must be > 0")
	}
	listing, err := e.listings.GetListing(ctx, listingID)
	if err != nil {
		return Result{}, err
	}

	price = Round(price)
	if err := e.publisher.UpdatePrice(ctx, listing.ExternalID, price, e.currency(listing)); err != nil {
		e.skip(listing, OutcomeFailed, err)
		return Result{}, fmt.Errorf("recover listing %s: %w", listing.ID, err)
	}
	return e.finishRecovery(ctx, listing, price)
}

// Recovery is one item of a bulk emergency recovery.
type Recovery struct {
	ListingID uuid.UUID
	Price     decimal.Decimal
}

// EmergencyRecoverBulk recovers many listings with one bulk ingestion call and
// returns the marketplace task id. Input is validated in full before anything
// is sent. Once the bulk call is accepted every listing gets its audit entry;
// local store failures are joined into the returned error.
func (e *Engine) EmergencyRecoverBulk(ctx context.Context, items []Recovery) (int64, []Result, error) {
	if len(items) == 0 {
		return 0, nil, model.NewValidationError("items", "must not be empty")
	}

	listings := make([]model.Listing, len(items))
	updates := make([]api.PriceUpdate, len(items))
	for i, it := range items {
		if !it.Price.IsPositive() {
			return 0, nil, model.NewValidationError(fmt.Sprintf("items[%d].price", i), "must be > 0")
		}
		l, err := e.listings.GetListing(ctx, it.ListingID)
		if err != nil {
			return 0, nil, err
		}
		listings[i] = l
		updates[i] = api.PriceUpdate{ListingID: l.ExternalID, Price: Round(it.Price), Currency: e.currency(l)}
	}

	taskID, err := e.publisher.BulkUpdatePrices(ctx, updates)
	if err != nil {
		return 0, nil, fmt.Errorf("bulk recover: %w", err)
	}

	// Every item is already repriced upstream, so each one is audited
	// before any failure is reported.
	results := make([]Result, 0, len(items))
	var errs []error
	for i, l := range listings {
		res, err := e.finishRecovery(ctx, l, updates[i].Price)
		if err != nil {
			errs = append(errs, fmt.Errorf("listing %s: %w", l.ID, err))
		}
		if res.Entry.ID != uuid.Nil {
			results = append(results, res)
		}
	}
	return taskID, results, errors.Join(errs...)
}

func (e *Engine) finishRecovery(ctx context.Context, listing model.Listing, price decimal.Decimal) (Result, error) {
	storeErr := e.recordPrice(ctx, listing, price)

	res := Result{
		Listing:  listing,
		OldPrice: listing.Price,
		Decision: Decision{Price: price, Target: price, Unchanged: price.Equal(listing.Price)},
	}
	res.Entry = e.entry(listing, model.KindRecovery, price, decimal.Zero, nil, true, false)
	if err := e.history.AppendHistory(ctx, res.Entry); err != nil {
		return Result{}, errors.Join(storeErr, fmt.Errorf("append history: %w", err))
	}
	if storeErr != nil {
		e.logger.Error("recovered price not stored", "listing_id", listing.ID, "new_price", price, "error", storeErr)
	}

	e.observe(OutcomeRecovery)
	e.emit(ctx, listing, listing.Price, price, model.KindRecovery)
	e.logger.Warn("emergency price recovery",
		"listing_id", listing.ID,
		"sku", listing.SKU,
		"old_price", listing.Price,
		"new_price", price,
	)
	return res, storeErr
}

// Sweep evaluates every published listing with bounded concurrency. A
// failing listing never stops the sweep; all failures are joined into the
// returned error.
func (e *Engine) Sweep(ctx context.Context) error {
	start := e.now()

	listings, err := e.listings.ListListings(ctx)
	if err != nil {
		return fmt.Errorf("list listings: %w", err)
	}

	var (
		mu        sync.Mutex
		errs      []error
		published int
		unchanged int
	)

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)

	for _, l := range listings {
		if !l.IsPublished() {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := e.evaluate(ctx, l)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				errs = append(errs, fmt.Errorf("listing %s (%s): %w", l.ID, l.SKU, err))
			case res.Entry.Published:
				published++
			default:
				unchanged++
			}
			return nil
		})
	}
	g.Wait()

	e.logger.Info("reprice sweep finished",
		"listings", len(listings),
		"published", published,
		"unchanged", unchanged,
		"skipped", len(errs),
		"duration", e.now().Sub(start),
	)

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// decision bundles a Result under construction with the effective mode.
type decision struct {
	Result
	mode model.PricingMode
}

// decide reads parameters once, snapshots competitors and runs the strategy.
func (e *Engine) decide(ctx context.Context, listing model.Listing, current decimal.Decimal) (decision, []model.CompetitorOffer, error) {
	params, err := e.params.GetParameters(ctx, listing.Key())
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			err = &model.MissingConfigError{Key: listing.Key()}
			e.skip(listing, OutcomeSkippedConfig, err)
			return decision{}, nil, err
		}
		return decision{}, nil, fmt.Errorf("get parameters: %w", err)
	}
	params.ApplyDefaults()

	offers, err := e.snapshots.Snapshot(ctx, listing)
	if err != nil {
		e.skip(listing, OutcomeSkippedAPI, err)
		return decision{}, nil, fmt.Errorf("competitor snapshot: %w", err)
	}

	in := Input{
		Params:       params,
		BasePrice:    listing.BasePrice,
		CurrentPrice: current,
	}
	var best *model.CompetitorOffer
	if o, ok := competitor.BestOffer(offers, params.Mode); ok {
		best = &o
		in.Competitor = best
	}

	d, err := Decide(in)
	if err != nil {
		e.skip(listing, OutcomeSkippedInvalid, err)
		return decision{}, nil, err
	}

	return decision{
		Result: Result{
			Listing:    listing,
			OldPrice:   current,
			Decision:   d,
			Competitor: best,
		},
		mode: params.Mode,
	}, offers, nil
}

// recordPrice stores a published price, moving last_dip_at when it dropped.
func (e *Engine) recordPrice(ctx context.Context, listing model.Listing, price decimal.Decimal) error {
	now := e.now()
	var dip *time.Time
	if price.LessThan(listing.Price) {
		dip = &now
	}
	if err := e.listings.UpdateListingPrice(ctx, listing.ID, price, dip, now); err != nil {
		return fmt.Errorf("update listing price: %w", err)
	}
	return nil
}

func (e *Engine) entry(listing model.Listing, kind model.EntryKind, price, floor decimal.Decimal,
	comp *model.CompetitorOffer, published, winner bool) model.PriceHistoryEntry {
	en := model.PriceHistoryEntry{
		ID:         uuid.New(),
		ListingID:  listing.ID,
		Price:      price,
		Currency:   e.currency(listing),
		FloorPrice: floor,
		IsWinner:   winner,
		Kind:       kind,
		Published:  published,
		Timestamp:  e.now(),
	}
	if comp != nil {
		p := comp.Price
		en.CompetitorName = comp.Name
		en.CompetitorPrice = &p
	}
	return en
}

func (e *Engine) emit(ctx context.Context, listing model.Listing, oldPrice, newPrice decimal.Decimal, kind model.EntryKind) {
	err := e.events.PublishPriceChanged(ctx, events.PriceChanged{
		ListingID:   listing.ID,
		ExternalID:  listing.ExternalID,
		SKU:         listing.SKU,
		Grade:       listing.Grade,
		CountryCode: listing.CountryCode,
		OldPrice:    oldPrice,
		NewPrice:    newPrice,
		Currency:    e.currency(listing),
		Kind:        kind,
		At:          e.now(),
	})
	if err != nil {
		e.logger.Warn("failed to publish price event", "listing_id", listing.ID, "error", err)
	}
}

func (e *Engine) skip(listing model.Listing, outcome string, err error) {
	e.observe(outcome)
	e.logger.Warn("reprice skipped",
		"listing_id", listing.ID,
		"sku", listing.SKU,
		"grade", listing.Grade,
		"country", listing.CountryCode,
		"outcome", outcome,
		"reason", err,
	)
}

func (e *Engine) observe(outcome string) {
	if e.observer != nil {
		e.observer.ObserveDecision(outcome)
	}
}

func (e *Engine) currency(l model.Listing) string {
	if l.Currency != "" {
		return l.Currency
	}
	return e.cfg.Currency
}
