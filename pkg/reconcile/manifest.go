package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bundleworks/stockpilot/pkg/shopify"
)

// Line-item properties the storefront bundle selector writes on the
// placeholder product's line.
const (
	// SelectionsProperty holds a JSON array of {id, quantity} selections.
	SelectionsProperty = "_All Selected Variants(ids)"
	// WipeProperty holds a JSON object {id, quantity} referencing the
	// bundle's wipe/accessory product (not a variant).
	WipeProperty = "_Wipe Product"
)

var selectionsSchema = jsonschema.MustCompileString("selections.json", `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["id", "quantity"],
		"properties": {
			"id": {
				"anyOf": [
					{"type": "integer", "minimum": 1},
					{"type": "string", "minLength": 1}
				]
			},
			"quantity": {"type": "integer", "minimum": 1}
		}
	}
}`)

var wipeSchema = jsonschema.MustCompileString("wipe.json", `{
	"type": "object",
	"required": ["id", "quantity"],
	"properties": {
		"id": {
			"anyOf": [
				{"type": "integer", "minimum": 1},
				{"type": "string", "minLength": 1}
			]
		},
		"quantity": {"type": "integer", "minimum": 1}
	}
}`)

// ExtractManifest pulls the bundle manifest out of an event's line items:
// the selection entries from every line carrying the selections property, in
// line order, followed by at most one wipe-product entry. A nil manifest
// with a nil error means the event has no actionable lines.
func ExtractManifest(event *CommerceEvent) ([]SelectionEntry, error) {
	var manifest []SelectionEntry
	var wipe *SelectionEntry

	for _, line := range event.LineItems {
		for _, prop := range line.Properties {
			switch prop.Name {
			case SelectionsProperty:
				entries, err := parseSelections(prop.Value)
				if err != nil {
					return nil, err
				}
				manifest = append(manifest, entries...)
			case WipeProperty:
				if wipe != nil {
					continue // one wipe product per order
				}
				entry, err := parseWipe(prop.Value)
				if err != nil {
					return nil, err
				}
				wipe = entry
			}
		}
	}

	if wipe != nil {
		manifest = append(manifest, *wipe)
	}
	return manifest, nil
}

func parseSelections(raw string) ([]SelectionEntry, error) {
	v, err := decodeJSON(raw)
	if err != nil {
		return nil, &ManifestParseError{Property: SelectionsProperty, Err: err}
	}
	if err := selectionsSchema.Validate(v); err != nil {
		return nil, &ManifestParseError{Property: SelectionsProperty, Err: err}
	}

	arr := v.([]any)
	entries := make([]SelectionEntry, 0, len(arr))
	for _, item := range arr {
		entry, err := entryFromObject(item.(map[string]any), false)
		if err != nil {
			return nil, &ManifestParseError{Property: SelectionsProperty, Err: err}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseWipe(raw string) (*SelectionEntry, error) {
	v, err := decodeJSON(raw)
	if err != nil {
		return nil, &ManifestParseError{Property: WipeProperty, Err: err}
	}
	if err := wipeSchema.Validate(v); err != nil {
		return nil, &ManifestParseError{Property: WipeProperty, Err: err}
	}

	entry, err := entryFromObject(v.(map[string]any), true)
	if err != nil {
		return nil, &ManifestParseError{Property: WipeProperty, Err: err}
	}
	return &entry, nil
}

// decodeJSON decodes with UseNumber so Shopify's large numeric IDs survive
// without float rounding.
func decodeJSON(raw string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return v, nil
}

func entryFromObject(obj map[string]any, wipe bool) (SelectionEntry, error) {
	entry := SelectionEntry{IsProduct: wipe}
	switch id := obj["id"].(type) {
	case json.Number:
		entry.Ref = id.String()
	case string:
		entry.Ref = id
		if shopify.IsProductGID(id) {
			entry.IsProduct = true
		}
	}
	qty, err := quantityFromNumber(obj["quantity"].(json.Number))
	if err != nil {
		return SelectionEntry{}, err
	}
	entry.Quantity = qty
	return entry, nil
}

// quantityFromNumber converts a decoded quantity to int. The schema's
// "integer" type admits integer-valued floats ("2.0"), which Int64 refuses,
// so those fall through to a float parse.
func quantityFromNumber(n json.Number) (int, error) {
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("quantity %q is not an integer", n.String())
	}
	return int(f), nil
}
