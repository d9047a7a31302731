package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/rickgao/bm-repricer/internal/model"
)

// GetListings fetches one page of seller listings (1-based).
func (c *Client) GetListings(ctx context.Context, page int) (*ListingsResponse, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}

	var resp ListingsResponse
	if err := c.get(ctx, "listings.list", BucketGlobal, "/ws/listings", query, &resp); err != nil {
		return nil, fmt.Errorf("get listings: %w", err)
	}

	return &resp, nil
}

// GetAllListings fetches all listings by paginating through results.
func (c *Client) GetAllListings(ctx context.Context) ([]APIListing, error) {
	var all []APIListing

	for page := 1; ; page++ {
		resp, err := c.GetListings(ctx, page)
		if err != nil {
			return nil, err
		}

		all = append(all, resp.Results...)

		if resp.Next == nil || *resp.Next == "" || len(resp.Results) == 0 {
			break
		}
	}

	return all, nil
}

// GetListing fetches a single listing by its marketplace id.
func (c *Client) GetListing(ctx context.Context, listingID string) (*APIListing, error) {
	if listingID == "" {
		return nil, model.NewValidationError("listing_id", "is required")
	}

	var resp APIListing
	path := "/ws/listings/" + url.PathEscape(listingID)
	if err := c.get(ctx, "listings.get", BucketGlobal, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get listing %s: %w", listingID, err)
	}

	return &resp, nil
}

// UpdateListing applies a partial update to a listing.
func (c *Client) UpdateListing(ctx context.Context, listingID string, req UpdateListingRequest) (*APIListing, error) {
	if listingID == "" {
		return nil, model.NewValidationError("listing_id", "is required")
	}

	var resp APIListing
	path := "/ws/listings/" + url.PathEscape(listingID)
	if err := c.send(ctx, "listings.update", BucketPricing, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("update listing %s: %w", listingID, err)
	}

	return &resp, nil
}

// UpdatePrice publishes a new price for a listing.
func (c *Client) UpdatePrice(ctx context.Context, listingID string, price decimal.Decimal, currency string) error {
	_, err := c.UpdateListing(ctx, listingID, UpdateListingRequest{
		Price:    &price,
		Currency: currency,
	})
	return err
}
