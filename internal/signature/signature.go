// Package signature computes the canonical optimizer-input fingerprint of a list.
package signature

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/basket/internal/models"
)

// Compute returns an order-independent encoding of the (id, quantity) multiset and
// the clamped store cap. Checked state and product names do not contribute.
func Compute(items []models.ListItem, maxStores int) string {
	type pair struct {
		id  int64
		qty float64
	}
	pairs := make([]pair, 0, len(items))
	for _, it := range items {
		if it.CanonicalID <= 0 || math.IsNaN(it.Quantity) || math.IsInf(it.Quantity, 0) {
			continue
		}
		pairs = append(pairs, pair{id: it.CanonicalID, qty: it.Quantity})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].id != pairs[j].id {
			return pairs[i].id < pairs[j].id
		}
		return pairs[i].qty < pairs[j].qty
	})

	var b strings.Builder
	b.WriteString(strconv.Itoa(models.ClampMaxStores(maxStores)))
	b.WriteByte('#')
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.FormatInt(p.id, 10))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(p.qty, 'f', -1, 64))
	}
	return b.String()
}
