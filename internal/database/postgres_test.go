package database

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rickgao/bm-repricer/internal/model"
)

// openTestDB connects to REPRICER_TEST_DATABASE_URL, applying migrations.
// Tests are skipped when it is unset.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("REPRICER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("REPRICER_TEST_DATABASE_URL not set")
	}
	if err := Migrate(ToMigrationURL(url), nil); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("pgxpool.New() error = %v", err)
	}
	t.Cleanup(pool.Close)
	return New(pool)
}

func TestDB_ListingUpsertAndPrice(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	ext := "it-" + uuid.NewString()
	l := model.Listing{
		ExternalID: ext, SKU: "IPH13-128", Grade: "A", CountryCode: "fr-fr", Currency: "EUR",
		Price: decimal.RequireFromString("499.00"), BasePrice: decimal.RequireFromString("450.00"),
		Quantity: 3, State: model.PublicationOnline, UpdatedAt: now,
	}
	stored, created, err := db.UpsertListing(ctx, l)
	if err != nil {
		t.Fatalf("UpsertListing() error = %v", err)
	}
	if !created || stored.ID == uuid.Nil {
		t.Fatalf("UpsertListing() created = %v, id = %v", created, stored.ID)
	}

	dip := now.Add(time.Minute)
	if err := db.UpdateListingPrice(ctx, stored.ID, decimal.RequireFromString("489.99"), &dip, dip); err != nil {
		t.Fatalf("UpdateListingPrice() error = %v", err)
	}

	l.Quantity = 5
	again, created, err := db.UpsertListing(ctx, l)
	if err != nil {
		t.Fatalf("UpsertListing() error = %v", err)
	}
	if created || again.ID != stored.ID {
		t.Errorf("second upsert created = %v, id = %v; want false, %v", created, again.ID, stored.ID)
	}

	got, err := db.GetListingByExternalID(ctx, ext)
	if err != nil {
		t.Fatalf("GetListingByExternalID() error = %v", err)
	}
	if got.Quantity != 5 {
		t.Errorf("Quantity = %d, want 5", got.Quantity)
	}
	if got.LastDipAt == nil || !got.LastDipAt.Equal(dip) {
		t.Errorf("LastDipAt = %v, want %v", got.LastDipAt, dip)
	}

	if _, err := db.GetListing(ctx, uuid.New()); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetListing(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestDB_ParametersRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	p := model.PricingParameters{
		SKU: "sku-" + uuid.NewString(), Grade: "B", CountryCode: "de-de",
		CRefurb: decimal.RequireFromString("42.50"), COp: decimal.RequireFromString("7.125"),
		CRisk: decimal.RequireFromString("3"), MTarget: decimal.RequireFromString("0.15"),
		FBM: decimal.RequireFromString("0.1"), PriceStep: decimal.RequireFromString("0.5"),
		MinPrice: decimal.RequireFromString("60"), MaxPrice: decimal.RequireFromString("200"),
		Mode: model.ModeOvercut, FallbackRule: model.FallbackCostPlus,
		UpdatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := db.UpsertParameters(ctx, p); err != nil {
		t.Fatalf("UpsertParameters() error = %v", err)
	}
	got, err := db.GetParameters(ctx, p.Key())
	if err != nil {
		t.Fatalf("GetParameters() error = %v", err)
	}
	if !got.COp.Equal(p.COp) || !got.MTarget.Equal(p.MTarget) || !got.MaxPrice.Equal(p.MaxPrice) {
		t.Errorf("GetParameters() = %+v, want %+v", got, p)
	}
	if got.Mode != p.Mode || got.FallbackRule != p.FallbackRule {
		t.Errorf("Mode/FallbackRule = %s/%s, want %s/%s", got.Mode, got.FallbackRule, p.Mode, p.FallbackRule)
	}
}

func TestDB_HistoryAppendOnly(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	listingID := uuid.New()
	base := time.Now().UTC().Truncate(time.Second)

	comp := decimal.RequireFromString("120.00")
	entries := []model.PriceHistoryEntry{
		{ListingID: listingID, Price: decimal.RequireFromString("119.00"), Currency: "EUR", CompetitorName: "A", CompetitorPrice: &comp, Kind: model.KindEvaluation, Published: true, Timestamp: base},
		{ListingID: listingID, Price: decimal.RequireFromString("125.00"), Currency: "EUR", Kind: model.KindRecovery, Published: true, Timestamp: base.Add(time.Minute)},
		{ListingID: listingID, Price: decimal.RequireFromString("118.00"), Currency: "EUR", Kind: model.KindProbe, Timestamp: base.Add(2 * time.Minute)},
	}
	if err := db.AppendHistoryBatch(ctx, entries); err != nil {
		t.Fatalf("AppendHistoryBatch() error = %v", err)
	}

	page, total, err := db.ListHistory(ctx, listingID, 2, 0)
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if total != 3 || len(page) != 2 {
		t.Fatalf("ListHistory() total = %d, len = %d; want 3, 2", total, len(page))
	}
	if page[0].Kind != model.KindProbe {
		t.Errorf("newest kind = %s, want probe", page[0].Kind)
	}

	agg, err := db.AggregateHistory(ctx, &listingID, base, base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("AggregateHistory() error = %v", err)
	}
	if agg.Entries != 2 {
		t.Errorf("Entries = %d, want 2", agg.Entries)
	}
	if agg.MaxOwnPrice == nil || !agg.MaxOwnPrice.Equal(decimal.RequireFromString("125")) {
		t.Errorf("MaxOwnPrice = %v, want 125", agg.MaxOwnPrice)
	}
	if agg.MaxCompetitorPrice == nil || !agg.MaxCompetitorPrice.Equal(comp) {
		t.Errorf("MaxCompetitorPrice = %v, want %v", agg.MaxCompetitorPrice, comp)
	}

	if _, err := db.pool.Exec(ctx, `DELETE FROM price_history WHERE listing_id = $1`, listingID); err == nil {
		t.Error("DELETE on price_history succeeded, want append-only rejection")
	}
}

func TestDB_TestOffersAndState(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	listingID := uuid.New()
	cid := "test:" + uuid.NewString()

	if err := db.AddTestOffer(ctx, model.CompetitorOffer{
		ListingID: listingID, CompetitorID: &cid, Name: "Rival",
		Price: decimal.RequireFromString("99.90"), Currency: "EUR", Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("AddTestOffer() error = %v", err)
	}
	offers, err := db.ListTestOffers(ctx, listingID)
	if err != nil {
		t.Fatalf("ListTestOffers() error = %v", err)
	}
	if len(offers) != 1 || !offers[0].IsTest || offers[0].CompetitorID == nil || *offers[0].CompetitorID != cid {
		t.Fatalf("ListTestOffers() = %+v", offers)
	}
	n, err := db.ClearTestOffers(ctx, listingID)
	if err != nil || n != 1 {
		t.Errorf("ClearTestOffers() = %d, %v; want 1, nil", n, err)
	}

	name := "it-" + uuid.NewString()
	if err := db.SaveBucket(ctx, model.RateLimitBucket{Name: name, MaxTokens: 7, RefillInterval: 1500 * time.Millisecond}); err != nil {
		t.Fatalf("SaveBucket() error = %v", err)
	}
	buckets, err := db.ListBuckets(ctx)
	if err != nil {
		t.Fatalf("ListBuckets() error = %v", err)
	}
	found := false
	for _, b := range buckets {
		if b.Name == name {
			found = true
			if b.MaxTokens != 7 || b.RefillInterval != 1500*time.Millisecond {
				t.Errorf("bucket = %+v", b)
			}
		}
	}
	if !found {
		t.Errorf("bucket %s not listed", name)
	}
}
