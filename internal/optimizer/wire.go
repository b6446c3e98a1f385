// Package optimizer talks to the remote store-allocation optimizer.
package optimizer

// RequestItem is the only per-item data sent to the optimizer.
type RequestItem struct {
	CanonicalID int64   `json:"canonical_id"`
	Quantity    float64 `json:"quantity"`
}

// Request is the optimize payload.
type Request struct {
	MaxStores int           `json:"max_stores"`
	Items     []RequestItem `json:"items"`
}

// Response mirrors the optimizer's JSON. Optional fields are pointers so absence
// is distinguishable from zero.
type Response struct {
	Success                    bool                 `json:"success"`
	Message                    string               `json:"message"`
	Allocations                []ResponseAllocation `json:"allocations"`
	TotalCost                  *float64             `json:"total_cost"`
	Savings                    *float64             `json:"savings"`
	SavingsPercent             *float64             `json:"savings_percent"`
	TotalWorstCost             *float64             `json:"total_worst_cost,omitempty"`
	PotentialSavings           *float64             `json:"potential_savings,omitempty"`
	PotentialSavingsPercent    *float64             `json:"potential_savings_percent,omitempty"`
	ItemsWithoutPrice          []int64              `json:"items_without_price"`
	ItemsOutsideSelectedStores *[]int64             `json:"items_outside_selected_stores,omitempty"`
	FallbackPrices             []ResponseFallback   `json:"fallback_prices,omitempty"`
	PriceLookbackDays          *int                 `json:"price_lookback_days,omitempty"`
}

// ResponseAllocation is one store in the optimizer response.
type ResponseAllocation struct {
	StoreID      int64          `json:"store_id"`
	StoreName    string         `json:"store_name"`
	StoreAddress string         `json:"store_address"`
	Total        *float64       `json:"total"`
	Items        []ResponseItem `json:"items"`
}

// ResponseItem is one priced line in an allocation.
type ResponseItem struct {
	CanonicalID int64    `json:"canonical_id"`
	ProductName string   `json:"product_name"`
	Quantity    *float64 `json:"quantity"`
	Price       *float64 `json:"price"`
	Subtotal    *float64 `json:"subtotal"`
}

// ResponseFallback is a best-known price for an unplaced item.
type ResponseFallback struct {
	CanonicalID int64    `json:"canonical_id"`
	Price       *float64 `json:"price"`
	StoreName   string   `json:"store_name"`
}
