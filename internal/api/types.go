package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money is the marketplace's amount+currency pair.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Publication states as integers on the wire.
const (
	StateMissingInfo = 0
	StatePending     = 1
	StateOnline      = 2
	StateOffline     = 3
	StateDeactivated = 4
)

// APIListing represents a seller listing from the API.
type APIListing struct {
	ListingID        int64               `json:"listing_id"`
	SKU              string              `json:"sku"`
	Title            string              `json:"title,omitempty"`
	Grade            string              `json:"grade"`
	CountryCode      string              `json:"country_code"`
	Price            decimal.Decimal     `json:"price"`
	MinPrice         decimal.NullDecimal `json:"min_price"`
	Currency         string              `json:"currency"`
	Quantity         int                 `json:"quantity"`
	PublicationState int                 `json:"publication_state"`
}

// ListingsResponse is one page of /ws/listings.
type ListingsResponse struct {
	Count    int          `json:"count"`
	Next     *string      `json:"next"`
	Previous *string      `json:"previous"`
	Results  []APIListing `json:"results"`
}

// UpdateListingRequest is the body of POST /ws/listings/{id}. Nil fields are
// left unchanged by the marketplace.
type UpdateListingRequest struct {
	Price            *decimal.Decimal `json:"price,omitempty"`
	Currency         string           `json:"currency,omitempty"`
	Quantity         *int             `json:"quantity,omitempty"`
	PublicationState *int             `json:"publication_state,omitempty"`
}

// APIOffer is one offer returned by the backbox competitors endpoint.
type APIOffer struct {
	SellerID   string    `json:"seller_id"`
	SellerName string    `json:"seller_name"`
	Price      Money     `json:"price"`
	IsOwn      bool      `json:"is_own"`
	IsWinning  bool      `json:"is_winning"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CompetitorsResponse is the body of GET /ws/backbox/v1/competitors/{id}.
type CompetitorsResponse struct {
	ListingID  string     `json:"listing_id"`
	PriceToWin *Money     `json:"price_to_win,omitempty"`
	Offers     []APIOffer `json:"offers"`
}

// BuybackOrder is a buyback order as returned by the orders endpoints.
type BuybackOrder struct {
	OrderID     string    `json:"orderId"`
	Status      string    `json:"status"`
	ListingSKU  string    `json:"listingSku,omitempty"`
	Grade       string    `json:"grade,omitempty"`
	CountryCode string    `json:"countryCode,omitempty"`
	Price       *Money    `json:"price,omitempty"`
	CreatedAt   time.Time `json:"creationDate"`
	ModifiedAt  time.Time `json:"modificationDate"`
}

// OrdersResponse is one page of buyback orders.
type OrdersResponse struct {
	Count   int            `json:"count"`
	Next    *string        `json:"next"`
	Results []BuybackOrder `json:"results"`
}

// GetOrdersOptions are the query parameters for GetOrders.
type GetOrdersOptions struct {
	Page  int
	Limit int
}

// OrderStatusUpdate is the body of PUT {buyback}/orders/{id}/status.
type OrderStatusUpdate struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// PriceUpdate is one row of a bulk price ingestion.
type PriceUpdate struct {
	ListingID string          `json:"listing_id"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
}

// BulkUpdateRequest is the body of POST /ws/listings/bulk.
type BulkUpdateRequest struct {
	Items []PriceUpdate `json:"items"`
}

// BulkUpdateResponse identifies the asynchronous ingestion task.
type BulkUpdateResponse struct {
	TaskID int64 `json:"task_id"`
}

// TaskResponse reports the state of an ingestion task.
type TaskResponse struct {
	TaskID int64  `json:"task_id"`
	Status string `json:"status"` // "pending", "running", "done", "failed"
	Errors []struct {
		ListingID string `json:"listing_id"`
		Message   string `json:"message"`
	} `json:"errors,omitempty"`
}
