package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rickgao/bm-repricer/internal/model"
)

// GetCompetitors fetches the offers competing with a listing.
func (c *Client) GetCompetitors(ctx context.Context, listingID string) (*CompetitorsResponse, error) {
	if listingID == "" {
		return nil, model.NewValidationError("listing_id", "is required")
	}

	var resp CompetitorsResponse
	path := "/ws/backbox/v1/competitors/" + url.PathEscape(listingID)
	if err := c.get(ctx, "competitors.list", BucketCompetitors, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get competitors %s: %w", listingID, err)
	}

	return &resp, nil
}
