package cart

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/gomarket/pkg/types"
)

// itemJSON is the persisted record for one cart line. The blob is a JSON
// array of these records.
type itemJSON struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// encodeItems serializes the whole cart. An empty cart encodes as "[]".
func encodeItems(items []types.CartItem) ([]byte, error) {
	records := make([]itemJSON, len(items))
	for i, it := range items {
		records[i] = itemJSON{
			ID:       it.ID,
			Title:    it.Title,
			ImageURL: it.ImageURL,
			Price:    it.Price,
			Quantity: it.Quantity,
		}
	}
	blob, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encoding cart: %w", err)
	}
	return blob, nil
}

// decodeItems parses a persisted blob. An empty blob or JSON null is an
// empty cart. Any other blob must be an array of valid records with unique
// ids; otherwise the returned error wraps types.ErrDecode.
func decodeItems(blob []byte) ([]types.CartItem, error) {
	blob = bytes.TrimSpace(blob)
	if len(blob) == 0 {
		return nil, nil
	}

	var records []itemJSON
	if err := json.Unmarshal(blob, &records); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrDecode, err)
	}

	items := make([]types.CartItem, 0, len(records))
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		item := types.CartItem{
			ID:       r.ID,
			Title:    r.Title,
			ImageURL: r.ImageURL,
			Price:    r.Price,
			Quantity: r.Quantity,
		}
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", types.ErrDecode, i, err)
		}
		if seen[item.ID] {
			return nil, fmt.Errorf("%w: record %d: duplicate id %q", types.ErrDecode, i, item.ID)
		}
		seen[item.ID] = true
		items = append(items, item)
	}
	return items, nil
}
