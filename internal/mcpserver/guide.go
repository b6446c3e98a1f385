package mcpserver

// KPIGuide explains how the numbers returned by get_kpis are derived, so that
// LLM consumers describe savings accurately.
const KPIGuide = `# Basket KPI Guide

get_kpis returns metrics derived from the list's last successful optimization.
A list without a cached optimization reports zeros everywhere.

## Totals

- **optimized_total**: sum of the store totals in the chosen allocation.
- **baseline_total**: what the same basket would cost without optimizing.
  When the optimizer reported a worst-case total (` + "`" + `has_worst_data: true` + "`" + `),
  that value is the baseline. Otherwise it is optimized_total plus the reported savings.
- **savings** and **savings_percent**: baseline minus optimized, never negative.
  The percentage is relative to the baseline and is 0 when the baseline is 0.

## Excluded items

- **excluded_no_price**: products no store had a price for.
- **excluded_outside**: products priced somewhere, but not in the selected stores.
  When the optimizer did not list them (` + "`" + `outside_inferred: true` + "`" + `) they are
  computed as items that are neither allocated nor unpriced.
- **fallback_total**: best-known cost of the outside items, from fallback prices.

## Staleness

Changing an item's quantity, adding or removing items, or changing max_stores clears
the cached optimization. Checking items off or renaming them does not.
Call optimize_list again after content edits before quoting any savings.
`
