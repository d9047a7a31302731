package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rickgao/bm-repricer/internal/model"
)

// AddTestOffer stores a test competitor.
func (db *DB) AddTestOffer(ctx context.Context, o model.CompetitorOffer) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	_, err := db.pool.Exec(ctx, `
		INSERT INTO competitor_offers (id, listing_id, competitor_id, name, price, currency, is_winner, is_test, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true, $8)`,
		o.ID, o.ListingID, o.CompetitorID, o.Name, numeric(o.Price), o.Currency, o.IsWinner, o.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("add test offer: %w", err)
	}
	return nil
}

// ListTestOffers returns a listing's test competitors in insertion order.
func (db *DB) ListTestOffers(ctx context.Context, listingID uuid.UUID) ([]model.CompetitorOffer, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, listing_id, competitor_id, name, price, currency, is_winner, is_test, ts
		FROM competitor_offers
		WHERE listing_id = $1 AND is_test
		ORDER BY ts, id`, listingID)
	if err != nil {
		return nil, fmt.Errorf("list test offers: %w", err)
	}
	defer rows.Close()

	out := []model.CompetitorOffer{}
	for rows.Next() {
		var o model.CompetitorOffer
		if err := rows.Scan(
			&o.ID, &o.ListingID, &o.CompetitorID, &o.Name, &o.Price, &o.Currency,
			&o.IsWinner, &o.IsTest, &o.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan test offer: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ClearTestOffers removes a listing's test competitors.
func (db *DB) ClearTestOffers(ctx context.Context, listingID uuid.UUID) (int, error) {
	ct, err := db.pool.Exec(ctx,
		`DELETE FROM competitor_offers WHERE listing_id = $1 AND is_test`, listingID)
	if err != nil {
		return 0, fmt.Errorf("clear test offers: %w", err)
	}
	return int(ct.RowsAffected()), nil
}
