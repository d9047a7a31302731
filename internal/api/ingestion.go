package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rickgao/bm-repricer/internal/model"
)

// BulkUpdatePrices submits many price updates as one ingestion task.
func (c *Client) BulkUpdatePrices(ctx context.Context, items []PriceUpdate) (int64, error) {
	if len(items) == 0 {
		return 0, model.NewValidationError("items", "must not be empty")
	}
	for i, it := range items {
		if it.ListingID == "" {
			return 0, model.NewValidationError(fmt.Sprintf("items[%d].listing_id", i), "is required")
		}
		if !it.Price.IsPositive() {
			return 0, model.NewValidationError(fmt.Sprintf("items[%d].price", i), "must be > 0")
		}
	}

	var resp BulkUpdateResponse
	if err := c.send(ctx, "listings.bulk", BucketGlobal, http.MethodPost, "/ws/listings/bulk",
		BulkUpdateRequest{Items: items}, &resp); err != nil {
		return 0, fmt.Errorf("bulk update prices: %w", err)
	}

	return resp.TaskID, nil
}

// GetTask fetches the state of an ingestion task.
func (c *Client) GetTask(ctx context.Context, taskID int64) (*TaskResponse, error) {
	var resp TaskResponse
	path := "/ws/tasks/" + strconv.FormatInt(taskID, 10)
	if err := c.get(ctx, "tasks.get", BucketGlobal, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get task %d: %w", taskID, err)
	}

	return &resp, nil
}
