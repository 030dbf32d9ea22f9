package crawler

import (
	"bytes"
	"encoding/json"
	"strings"

	"product-image-miner/internal/product"
)

// NestedFields are stored as compact JSON strings so every product row stays
// flat.
var NestedFields = []string{
	"badges", "inventory", "categories", "rating_summary",
	"brand", "seller_specifications", "current_seller", "other_sellers",
	"configurable_options", "configurable_products", "specifications", "product_links",
	"services_and_promotions", "promotions", "stock_item", "installment_info",
}

// Normalize parses one product detail document. It returns ok=false for
// blank or invalid JSON, non-objects, and products without a usable id.
func Normalize(raw string) (map[string]json.RawMessage, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &doc); err != nil || doc == nil {
		return nil, false
	}

	var id product.ID
	if err := json.Unmarshal(orNull(doc["id"]), &id); err != nil || id.IsZero() {
		return nil, false
	}

	for _, field := range NestedFields {
		v, ok := doc[field]
		if !ok {
			continue
		}
		flat, err := flatten(v)
		if err != nil {
			return nil, false
		}
		doc[field] = flat
	}
	return doc, true
}

func flatten(v json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return nil, err
	}
	s := strings.ReplaceAll(buf.String(), "\n", "")
	return marshalNoEscape(s, "")
}

func orNull(v json.RawMessage) json.RawMessage {
	if len(v) == 0 {
		return json.RawMessage("null")
	}
	return v
}

func marshalNoEscape(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
