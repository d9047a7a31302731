package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rickgao/bm-repricer/internal/model"
)

const listingColumns = `id, COALESCE(external_id, ''), sku, grade, country_code, currency,
	price, base_price, quantity, state, last_dip_at, updated_at`

func scanListing(row pgx.Row) (model.Listing, error) {
	var l model.Listing
	err := row.Scan(
		&l.ID, &l.ExternalID, &l.SKU, &l.Grade, &l.CountryCode, &l.Currency,
		&l.Price, &l.BasePrice, &l.Quantity, &l.State, &l.LastDipAt, &l.UpdatedAt,
	)
	return l, err
}

// GetListing returns a listing by id.
func (db *DB) GetListing(ctx context.Context, id uuid.UUID) (model.Listing, error) {
	l, err := scanListing(db.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Listing{}, fmt.Errorf("listing %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Listing{}, fmt.Errorf("get listing %s: %w", id, err)
	}
	return l, nil
}

// GetListingByExternalID returns a listing by marketplace id.
func (db *DB) GetListingByExternalID(ctx context.Context, externalID string) (model.Listing, error) {
	l, err := scanListing(db.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE external_id = $1`, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Listing{}, fmt.Errorf("listing external_id=%s: %w", externalID, model.ErrNotFound)
	}
	if err != nil {
		return model.Listing{}, fmt.Errorf("get listing external_id=%s: %w", externalID, err)
	}
	return l, nil
}

// ListListings returns all listings ordered by sku, grade, country.
func (db *DB) ListListings(ctx context.Context) ([]model.Listing, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM listings ORDER BY sku, grade, country_code, id`)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	out := []model.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpsertListing inserts or updates a listing matched by ExternalID (or ID when
// ExternalID is empty). The stored ID and LastDipAt are preserved on update.
func (db *DB) UpsertListing(ctx context.Context, l model.Listing) (model.Listing, bool, error) {
	created := false
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		var (
			existingID  uuid.UUID
			existingDip *time.Time
		)
		lookup := func(query string, arg any) (bool, error) {
			err := tx.QueryRow(ctx, query, arg).Scan(&existingID, &existingDip)
			if errors.Is(err, pgx.ErrNoRows) {
				return false, nil
			}
			if err != nil {
				return false, fmt.Errorf("lookup listing: %w", err)
			}
			return true, nil
		}

		found := false
		var err error
		if l.ExternalID != "" {
			found, err = lookup(`SELECT id, last_dip_at FROM listings WHERE external_id = $1 FOR UPDATE`, l.ExternalID)
			if err != nil {
				return err
			}
		}
		if !found && l.ID != uuid.Nil {
			found, err = lookup(`SELECT id, last_dip_at FROM listings WHERE id = $1 FOR UPDATE`, l.ID)
			if err != nil {
				return err
			}
		}

		if found {
			l.ID = existingID
			if l.LastDipAt == nil {
				l.LastDipAt = existingDip
			}
		} else {
			created = true
			if l.ID == uuid.Nil {
				l.ID = uuid.New()
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO listings (id, external_id, sku, grade, country_code, currency,
				price, base_price, quantity, state, last_dip_at, updated_at)
			VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO UPDATE SET
				external_id = EXCLUDED.external_id,
				sku = EXCLUDED.sku,
				grade = EXCLUDED.grade,
				country_code = EXCLUDED.country_code,
				currency = EXCLUDED.currency,
				price = EXCLUDED.price,
				base_price = EXCLUDED.base_price,
				quantity = EXCLUDED.quantity,
				state = EXCLUDED.state,
				last_dip_at = EXCLUDED.last_dip_at,
				updated_at = EXCLUDED.updated_at`,
			l.ID, l.ExternalID, l.SKU, l.Grade, l.CountryCode, l.Currency,
			numeric(l.Price), numeric(l.BasePrice), l.Quantity, l.State, l.LastDipAt, l.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert listing: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Listing{}, false, err
	}
	return l, created, nil
}

// UpdateListingPrice records a newly published price.
func (db *DB) UpdateListingPrice(ctx context.Context, id uuid.UUID, price decimal.Decimal, lastDipAt *time.Time, at time.Time) error {
	ct, err := db.pool.Exec(ctx, `
		UPDATE listings
		SET price = $2, last_dip_at = COALESCE($3, last_dip_at), updated_at = $4
		WHERE id = $1`,
		id, numeric(price), lastDipAt, at,
	)
	if err != nil {
		return fmt.Errorf("update listing price %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("listing %s: %w", id, model.ErrNotFound)
	}
	return nil
}
