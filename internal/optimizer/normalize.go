package optimizer

import (
	"math"
	"sort"
	"time"

	"github.com/starford/basket/internal/models"
)

// Normalize converts a successful response into a cache entry. The signature is
// left empty; the caller stamps it at commit time.
func Normalize(resp *Response, now time.Time) *models.OptimizationCache {
	c := &models.OptimizationCache{
		Message:                 resp.Message,
		Allocations:             make([]models.StoreAllocation, 0, len(resp.Allocations)),
		TotalCost:               value(resp.TotalCost),
		Savings:                 value(resp.Savings),
		SavingsPercent:          value(resp.SavingsPercent),
		TotalWorstCost:          optional(resp.TotalWorstCost),
		PotentialSavings:        optional(resp.PotentialSavings),
		PotentialSavingsPercent: optional(resp.PotentialSavingsPercent),
		ItemsWithoutPrice:       idSet(resp.ItemsWithoutPrice),
		FallbackPrices:          make([]models.FallbackPrice, 0, len(resp.FallbackPrices)),
		OptimizedAt:             now.UTC(),
	}

	for _, a := range resp.Allocations {
		alloc := models.StoreAllocation{
			StoreID:      a.StoreID,
			StoreName:    a.StoreName,
			StoreAddress: a.StoreAddress,
			Total:        value(a.Total),
			Items:        make([]models.AllocatedItem, 0, len(a.Items)),
		}
		var sum float64
		for _, it := range a.Items {
			line := models.AllocatedItem{
				CanonicalID: it.CanonicalID,
				ProductName: it.ProductName,
				Quantity:    value(it.Quantity),
				Price:       value(it.Price),
				Subtotal:    value(it.Subtotal),
			}
			if it.Subtotal == nil || !isFinite(*it.Subtotal) {
				line.Subtotal = line.Price * line.Quantity
			}
			sum += line.Subtotal
			alloc.Items = append(alloc.Items, line)
		}
		if a.Total == nil || !isFinite(*a.Total) {
			alloc.Total = sum
		}
		c.Allocations = append(c.Allocations, alloc)
	}

	if resp.TotalCost == nil || !isFinite(*resp.TotalCost) {
		for _, a := range c.Allocations {
			c.TotalCost += a.Total
		}
	}
	if resp.ItemsOutsideSelectedStores != nil {
		c.ItemsOutsideSelectedStores = idSet(*resp.ItemsOutsideSelectedStores)
	}
	for _, fp := range resp.FallbackPrices {
		c.FallbackPrices = append(c.FallbackPrices, models.FallbackPrice{
			CanonicalID: fp.CanonicalID,
			Price:       value(fp.Price),
			StoreName:   fp.StoreName,
		})
	}
	if resp.PriceLookbackDays != nil && *resp.PriceLookbackDays > 0 {
		c.PriceLookbackDays = *resp.PriceLookbackDays
	}
	return c
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func value(p *float64) float64 {
	if p == nil || !isFinite(*p) {
		return 0
	}
	return *p
}

func optional(p *float64) *float64 {
	if p == nil || !isFinite(*p) {
		return nil
	}
	v := *p
	return &v
}

func idSet(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
