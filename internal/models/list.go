// Package models defines the domain types for Basket.
package models

import (
	"fmt"
	"time"
)

// Store cap bounds accepted by the optimizer.
const (
	MinStores     = 1
	MaxStores     = 5
	DefaultStores = 2
)

// Status is the lifecycle state of a list.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusClosed     Status = "closed"
	StatusOptimized  Status = "optimized"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// ParseBaseStatus accepts only the statuses a user may set explicitly.
func ParseBaseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusClosed, StatusOptimized:
		return st, nil
	}
	return "", fmt.Errorf("status %q cannot be set explicitly", s)
}

// DeriveStatus folds checked progress over the base status.
// No checked items keeps base; all checked is completed; otherwise in progress.
func DeriveStatus(base Status, items []ListItem) Status {
	checked := 0
	for _, it := range items {
		if it.IsChecked {
			checked++
		}
	}
	switch {
	case checked == 0:
		return base
	case checked == len(items):
		return StatusCompleted
	default:
		return StatusInProgress
	}
}

// ClampMaxStores bounds n to [MinStores, MaxStores].
func ClampMaxStores(n int) int {
	if n < MinStores {
		return MinStores
	}
	if n > MaxStores {
		return MaxStores
	}
	return n
}

// ListItem is one desired product in a list.
type ListItem struct {
	CanonicalID int64   `json:"canonical_id"`
	ProductName string  `json:"product_name"`
	Quantity    float64 `json:"quantity"`
	IsChecked   bool    `json:"is_checked"`
}

// ListDraft is the device-owned representation of a shopping list.
// Status holds the base value; DisplayStatus derives progress from items.
type ListDraft struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	MaxStores     int                `json:"max_stores"`
	Items         []ListItem         `json:"items"`
	Status        Status             `json:"status"`
	DisplayStatus Status             `json:"display_status,omitempty"`
	Optimization  *OptimizationCache `json:"optimization"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Derived returns the status shown to the user.
func (d *ListDraft) Derived() Status {
	return DeriveStatus(d.Status, d.Items)
}

// FindItem returns the index of the item with the given canonical id, or -1.
func (d *ListDraft) FindItem(canonicalID int64) int {
	for i, it := range d.Items {
		if it.CanonicalID == canonicalID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe to hand outside the owning session.
func (d *ListDraft) Clone() *ListDraft {
	if d == nil {
		return nil
	}
	out := *d
	out.Items = append([]ListItem(nil), d.Items...)
	out.Optimization = d.Optimization.Clone()
	return &out
}

// OptimizationCache is the last successful optimizer result for a list.
// Signature is stamped locally at commit time and never comes from the wire.
type OptimizationCache struct {
	Message                    string            `json:"message"`
	Allocations                []StoreAllocation `json:"allocations"`
	TotalCost                  float64           `json:"total_cost"`
	Savings                    float64           `json:"savings"`
	SavingsPercent             float64           `json:"savings_percent"`
	TotalWorstCost             *float64          `json:"total_worst_cost"`
	PotentialSavings           *float64          `json:"potential_savings"`
	PotentialSavingsPercent    *float64          `json:"potential_savings_percent"`
	ItemsWithoutPrice          []int64           `json:"items_without_price"`
	ItemsOutsideSelectedStores []int64           `json:"items_outside_selected_stores"`
	FallbackPrices             []FallbackPrice   `json:"fallback_prices"`
	PriceLookbackDays          int               `json:"price_lookback_days"`
	OptimizedAt                time.Time         `json:"optimized_at"`
	Signature                  string            `json:"signature"`
}

// Clone returns a deep copy of c.
func (c *OptimizationCache) Clone() *OptimizationCache {
	if c == nil {
		return nil
	}
	out := *c
	out.Allocations = make([]StoreAllocation, len(c.Allocations))
	for i, a := range c.Allocations {
		a.Items = append([]AllocatedItem(nil), a.Items...)
		out.Allocations[i] = a
	}
	out.TotalWorstCost = clonePtr(c.TotalWorstCost)
	out.PotentialSavings = clonePtr(c.PotentialSavings)
	out.PotentialSavingsPercent = clonePtr(c.PotentialSavingsPercent)
	out.ItemsWithoutPrice = append([]int64(nil), c.ItemsWithoutPrice...)
	if c.ItemsOutsideSelectedStores != nil {
		out.ItemsOutsideSelectedStores = append([]int64{}, c.ItemsOutsideSelectedStores...)
	}
	out.FallbackPrices = append([]FallbackPrice(nil), c.FallbackPrices...)
	return &out
}

// StoreAllocation is the subset of items the optimizer assigned to one store.
type StoreAllocation struct {
	StoreID      int64           `json:"store_id"`
	StoreName    string          `json:"store_name"`
	StoreAddress string          `json:"store_address"`
	Total        float64         `json:"total"`
	Items        []AllocatedItem `json:"items"`
}

// AllocatedItem is a priced line within a store allocation.
type AllocatedItem struct {
	CanonicalID int64   `json:"canonical_id"`
	ProductName string  `json:"product_name"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	Subtotal    float64 `json:"subtotal"`
}

// FallbackPrice is the best known price for an item the optimizer could not place.
type FallbackPrice struct {
	CanonicalID int64   `json:"canonical_id"`
	Price       float64 `json:"price"`
	StoreName   string  `json:"store_name"`
}

// ListSummary is a lightweight listing entry.
type ListSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ItemCount int       `json:"item_count"`
	Status    Status    `json:"status"`
	Optimized bool      `json:"optimized"`
	UpdatedAt time.Time `json:"updated_at"`
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
