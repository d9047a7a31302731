package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rickgao/bm-repricer/internal/model"
)

// DefaultOrdersPageSize is the page size used by GetAllOrders.
const DefaultOrdersPageSize = 50

// GetOrders fetches one page of buyback orders.
func (c *Client) GetOrders(ctx context.Context, opts GetOrdersOptions) (*OrdersResponse, error) {
	query := url.Values{}
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	var resp OrdersResponse
	if err := c.get(ctx, "orders.list", BucketOrders, c.buybackPath+"/orders", query, &resp); err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}

	return &resp, nil
}

// GetAllOrders pages through every buyback order.
func (c *Client) GetAllOrders(ctx context.Context) ([]BuybackOrder, error) {
	var all []BuybackOrder
	opts := GetOrdersOptions{Page: 1, Limit: DefaultOrdersPageSize}

	for {
		resp, err := c.GetOrders(ctx, opts)
		if err != nil {
			return nil, err
		}

		all = append(all, resp.Results...)

		if resp.Next == nil || *resp.Next == "" || len(resp.Results) == 0 {
			break
		}
		opts.Page++
	}

	return all, nil
}

// GetOrder fetches a single buyback order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*BuybackOrder, error) {
	if orderID == "" {
		return nil, model.NewValidationError("order_id", "is required")
	}

	var resp BuybackOrder
	path := c.buybackPath + "/orders/" + url.PathEscape(orderID)
	if err := c.get(ctx, "orders.get", BucketOrders, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}

	return &resp, nil
}

// UpdateOrderStatus changes the status of a buyback order.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, update OrderStatusUpdate) error {
	if orderID == "" {
		return model.NewValidationError("order_id", "is required")
	}
	if update.Status == "" {
		return model.NewValidationError("status", "is required")
	}

	path := c.buybackPath + "/orders/" + url.PathEscape(orderID) + "/status"
	if err := c.send(ctx, "orders.update_status", BucketOrders, http.MethodPut, path, update, nil); err != nil {
		return fmt.Errorf("update order %s status: %w", orderID, err)
	}

	return nil
}
