// Package kpi derives display metrics from a cached optimization and the current items.
//
// Every arithmetic path has a finite fallback: missing or non-finite optimizer
// fields never reach the caller as NaN or Inf.
package kpi

import (
	"math"
	"sort"

	"github.com/starford/basket/internal/models"
)

// KPIs are the user-facing metrics for one list.
type KPIs struct {
	OptimizedTotal       float64 `json:"optimized_total"`
	BaselineTotal        float64 `json:"baseline_total"`
	Savings              float64 `json:"savings"`
	SavingsPercent       float64 `json:"savings_percent"`
	HasWorstData         bool    `json:"has_worst_data"`
	StoreCount           int     `json:"store_count"`
	ExcludedNoPrice      []int64 `json:"excluded_no_price"`
	ExcludedOutside      []int64 `json:"excluded_outside"`
	ExcludedNoPriceCount int     `json:"excluded_no_price_count"`
	ExcludedOutsideCount int     `json:"excluded_outside_count"`
	OutsideInferred      bool    `json:"outside_inferred"`
	// FallbackTotal estimates the extra spend for outside items that have a fallback price.
	FallbackTotal float64 `json:"fallback_total"`
}

// Derive computes KPIs. A nil optimization yields neutral values.
func Derive(opt *models.OptimizationCache, items []models.ListItem) KPIs {
	out := KPIs{ExcludedNoPrice: []int64{}, ExcludedOutside: []int64{}}
	if opt == nil {
		return out
	}

	for _, a := range opt.Allocations {
		out.OptimizedTotal += finite(a.Total)
	}
	out.StoreCount = len(opt.Allocations)

	worst, hasWorst := positive(opt.TotalWorstCost)
	out.HasWorstData = hasWorst
	if hasWorst {
		out.BaselineTotal = worst
	} else {
		out.BaselineTotal = out.OptimizedTotal + math.Max(0, finite(opt.Savings))
	}

	if v, ok := nonNegative(opt.PotentialSavings); hasWorst && ok {
		out.Savings = v
	} else {
		out.Savings = math.Max(0, out.BaselineTotal-out.OptimizedTotal)
	}

	if v, ok := nonNegative(opt.PotentialSavingsPercent); hasWorst && ok {
		out.SavingsPercent = v
	} else if out.BaselineTotal > 0 {
		out.SavingsPercent = out.Savings / out.BaselineTotal * 100
	}

	out.ExcludedNoPrice = uniqueSorted(opt.ItemsWithoutPrice)
	if opt.ItemsOutsideSelectedStores != nil {
		out.ExcludedOutside = uniqueSorted(opt.ItemsOutsideSelectedStores)
	} else {
		out.ExcludedOutside = inferOutside(opt, items)
		out.OutsideInferred = true
	}
	out.ExcludedNoPriceCount = len(out.ExcludedNoPrice)
	out.ExcludedOutsideCount = len(out.ExcludedOutside)
	out.FallbackTotal = fallbackTotal(opt, items, out.ExcludedOutside)

	return out
}

// inferOutside lists item ids that are neither allocated nor unpriced.
// Items that only have a fallback price still count as outside.
func inferOutside(opt *models.OptimizationCache, items []models.ListItem) []int64 {
	placed := make(map[int64]struct{})
	for _, a := range opt.Allocations {
		for _, it := range a.Items {
			placed[it.CanonicalID] = struct{}{}
		}
	}
	for _, id := range opt.ItemsWithoutPrice {
		placed[id] = struct{}{}
	}
	var ids []int64
	for _, it := range items {
		if _, ok := placed[it.CanonicalID]; !ok {
			ids = append(ids, it.CanonicalID)
		}
	}
	return uniqueSorted(ids)
}

func fallbackTotal(opt *models.OptimizationCache, items []models.ListItem, outside []int64) float64 {
	if len(opt.FallbackPrices) == 0 || len(outside) == 0 {
		return 0
	}
	qty := make(map[int64]float64, len(items))
	for _, it := range items {
		qty[it.CanonicalID] = finite(it.Quantity)
	}
	price := make(map[int64]float64, len(opt.FallbackPrices))
	for _, fp := range opt.FallbackPrices {
		if p := finite(fp.Price); p > 0 {
			price[fp.CanonicalID] = p
		}
	}
	var total float64
	for _, id := range outside {
		total += price[id] * qty[id]
	}
	return total
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func positive(p *float64) (float64, bool) {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) || *p <= 0 {
		return 0, false
	}
	return *p, true
}

func nonNegative(p *float64) (float64, bool) {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) || *p < 0 {
		return 0, false
	}
	return *p, true
}

func uniqueSorted(ids []int64) []int64 {
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
