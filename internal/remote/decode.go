package remote

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// The canonical store is schemaless: numbers may arrive as strings, prices
// as integers, timestamps in several encodings. Decoding is therefore
// tolerant, field by field, instead of strict struct unmarshalling.

func decodeProductDoc(raw map[string]any) (ProductDoc, error) {
	price, err := cast.ToFloat64E(raw["price"])
	if err != nil {
		return ProductDoc{}, fmt.Errorf("invalid price %v: %w", raw["price"], err)
	}
	quantity, err := cast.ToInt64E(raw["quantity"])
	if err != nil {
		return ProductDoc{}, fmt.Errorf("invalid quantity %v: %w", raw["quantity"], err)
	}

	return ProductDoc{
		RemoteID:    cast.ToString(raw["id"]),
		UID:         cast.ToString(raw["uid"]),
		Name:        cast.ToString(raw["name"]),
		Description: cast.ToString(raw["description"]),
		Price:       price,
		Quantity:    quantity,
		Category:    cast.ToString(raw["category"]),
		ScanCode:    cast.ToString(raw["scan_code"]),
		CreatedAt:   decodeTime(raw["created_at"]),
		UpdatedAt:   decodeTime(raw["updated_at"]),
	}, nil
}

func decodeProductDocs(raw []map[string]any) ([]ProductDoc, error) {
	docs := make([]ProductDoc, 0, len(raw))
	for _, r := range raw {
		doc, err := decodeProductDoc(r)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func decodeTime(v any) time.Time {
	if v == nil {
		return time.Time{}
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
