package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rickgao/bm-repricer/internal/model"
)

const historyColumns = `id, listing_id, price, currency, competitor_name, competitor_price,
	floor_price, is_winner, kind, published, ts`

// AppendHistory inserts an immutable audit entry.
func (db *DB) AppendHistory(ctx context.Context, e model.PriceHistoryEntry) error {
	return db.AppendHistoryBatch(ctx, []model.PriceHistoryEntry{e})
}

// AppendHistoryBatch inserts entries in a single round trip.
func (db *DB) AppendHistoryBatch(ctx context.Context, entries []model.PriceHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		batch.Queue(`
			INSERT INTO price_history (`+historyColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			e.ID, e.ListingID, numeric(e.Price), e.Currency, e.CompetitorName, nullNumeric(e.CompetitorPrice),
			numeric(e.FloorPrice), e.IsWinner, string(e.Kind), e.Published, e.Timestamp,
		)
	}

	results := db.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
	}
	return nil
}

// ListHistory returns a page of a listing's entries, newest first, and the
// total number of entries for the listing. A limit of 0 returns all entries.
func (db *DB) ListHistory(ctx context.Context, listingID uuid.UUID, limit, offset int) ([]model.PriceHistoryEntry, int, error) {
	var pageLimit *int
	if limit > 0 {
		pageLimit = &limit
	}

	batch := &pgx.Batch{}
	batch.Queue(`SELECT count(*) FROM price_history WHERE listing_id = $1`, listingID)
	batch.Queue(`SELECT `+historyColumns+` FROM price_history
		WHERE listing_id = $1
		ORDER BY ts DESC, id
		LIMIT $2 OFFSET $3`, listingID, pageLimit, offset)

	results := db.pool.SendBatch(ctx, batch)
	defer results.Close()

	var total int
	if err := results.QueryRow().Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}

	rows, err := results.Query()
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := []model.PriceHistoryEntry{}
	for rows.Next() {
		var (
			e    model.PriceHistoryEntry
			comp decimal.NullDecimal
			kind string
		)
		if err := rows.Scan(
			&e.ID, &e.ListingID, &e.Price, &e.Currency, &e.CompetitorName, &comp,
			&e.FloorPrice, &e.IsWinner, &kind, &e.Published, &e.Timestamp,
		); err != nil {
			return nil, 0, fmt.Errorf("scan history: %w", err)
		}
		if comp.Valid {
			e.CompetitorPrice = &comp.Decimal
		}
		e.Kind = model.EntryKind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	return out, total, nil
}

// AggregateHistory computes maxima over [since, until). A nil listingID
// aggregates across all listings.
func (db *DB) AggregateHistory(ctx context.Context, listingID *uuid.UUID, since, until time.Time) (model.PriceAggregate, error) {
	agg := model.PriceAggregate{ListingID: listingID, Since: since, Until: until}

	var maxOwn, maxComp decimal.NullDecimal
	err := db.pool.QueryRow(ctx, `
		SELECT count(*), max(price), max(competitor_price)
		FROM price_history
		WHERE ($1::uuid IS NULL OR listing_id = $1)
		  AND ts >= $2 AND ts < $3`,
		listingID, since, until,
	).Scan(&agg.Entries, &maxOwn, &maxComp)
	if err != nil {
		return model.PriceAggregate{}, fmt.Errorf("aggregate history: %w", err)
	}

	if maxOwn.Valid {
		agg.MaxOwnPrice = &maxOwn.Decimal
	}
	if maxComp.Valid {
		agg.MaxCompetitorPrice = &maxComp.Decimal
	}
	return agg, nil
}
