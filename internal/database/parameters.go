package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/bm-repricer/internal/model"
)

const parameterColumns = `sku, grade, country_code, c_refurb, c_op, c_risk, m_target, f_bm,
	price_step, min_price, max_price, mode, fallback_rule, updated_at`

func scanParameters(row pgx.Row) (model.PricingParameters, error) {
	var (
		p        model.PricingParameters
		mode     string
		fallback string
	)
	err := row.Scan(
		&p.SKU, &p.Grade, &p.CountryCode, &p.CRefurb, &p.COp, &p.CRisk, &p.MTarget, &p.FBM,
		&p.PriceStep, &p.MinPrice, &p.MaxPrice, &mode, &fallback, &p.UpdatedAt,
	)
	p.Mode = model.PricingMode(mode)
	p.FallbackRule = model.FallbackRule(fallback)
	return p, err
}

// GetParameters returns the parameters for a key.
func (db *DB) GetParameters(ctx context.Context, key model.ParamsKey) (model.PricingParameters, error) {
	p, err := scanParameters(db.pool.QueryRow(ctx,
		`SELECT `+parameterColumns+` FROM pricing_parameters
		WHERE sku = $1 AND grade = $2 AND country_code = $3`,
		key.SKU, key.Grade, key.CountryCode))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PricingParameters{}, fmt.Errorf("parameters %v: %w", key, model.ErrNotFound)
	}
	if err != nil {
		return model.PricingParameters{}, fmt.Errorf("get parameters %v: %w", key, err)
	}
	return p, nil
}

// ListParameters returns all parameter rows.
func (db *DB) ListParameters(ctx context.Context) ([]model.PricingParameters, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+parameterColumns+` FROM pricing_parameters ORDER BY sku, grade, country_code`)
	if err != nil {
		return nil, fmt.Errorf("list parameters: %w", err)
	}
	defer rows.Close()

	out := []model.PricingParameters{}
	for rows.Next() {
		p, err := scanParameters(rows)
		if err != nil {
			return nil, fmt.Errorf("scan parameters: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertParameters stores a parameters row.
func (db *DB) UpsertParameters(ctx context.Context, p model.PricingParameters) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO pricing_parameters (`+parameterColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (sku, grade, country_code) DO UPDATE SET
			c_refurb = EXCLUDED.c_refurb,
			c_op = EXCLUDED.c_op,
			c_risk = EXCLUDED.c_risk,
			m_target = EXCLUDED.m_target,
			f_bm = EXCLUDED.f_bm,
			price_step = EXCLUDED.price_step,
			min_price = EXCLUDED.min_price,
			max_price = EXCLUDED.max_price,
			mode = EXCLUDED.mode,
			fallback_rule = EXCLUDED.fallback_rule,
			updated_at = EXCLUDED.updated_at`,
		p.SKU, p.Grade, p.CountryCode,
		numeric(p.CRefurb), numeric(p.COp), numeric(p.CRisk), numeric(p.MTarget), numeric(p.FBM),
		numeric(p.PriceStep), numeric(p.MinPrice), numeric(p.MaxPrice), string(p.Mode), string(p.FallbackRule), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert parameters %v: %w", p.Key(), err)
	}
	return nil
}
