package persist

import (
	"encoding/json"
	"fmt"

	"github.com/starford/basket/internal/models"
)

// Encode serializes the complete draft, refreshing its display status.
func Encode(d *models.ListDraft) ([]byte, error) {
	out := *d
	out.DisplayStatus = d.Derived()
	if out.Items == nil {
		out.Items = []models.ListItem{}
	}
	data, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("persist: encode %s: %w", d.ID, err)
	}
	return data, nil
}

// Decode parses a stored draft and normalizes fields that older records may lack.
// Items without a positive id and quantity are dropped, so every later step sees
// the same item set the signature is computed over.
func Decode(data []byte) (*models.ListDraft, error) {
	var d models.ListDraft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("persist: decode: %w", err)
	}
	if d.ID == "" {
		return nil, fmt.Errorf("persist: decode: record has no id")
	}
	// Same clamp the signature applies; 0 becomes MinStores.
	d.MaxStores = models.ClampMaxStores(d.MaxStores)
	if _, err := models.ParseBaseStatus(string(d.Status)); err != nil {
		d.Status = models.StatusDraft
	}
	items := make([]models.ListItem, 0, len(d.Items))
	for _, it := range d.Items {
		if it.CanonicalID <= 0 || it.Quantity <= 0 {
			continue
		}
		items = append(items, it)
	}
	d.Items = items
	d.DisplayStatus = d.Derived()
	return &d, nil
}
