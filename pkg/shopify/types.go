package shopify

import (
	"fmt"
	"strings"
)

// InventoryLevel is the available quantity of an inventory item at one location.
type InventoryLevel struct {
	LocationID string
	Available  int
}

// InventoryItem is the stock-tracking record behind a product variant,
// together with its stocked locations (bounded page, first 10).
type InventoryItem struct {
	ID     string
	Levels []InventoryLevel
}

// AdjustChange is a single signed quantity delta against one
// (inventory item, location) pair.
type AdjustChange struct {
	Delta           int    `json:"delta"`
	InventoryItemID string `json:"inventoryItemId"`
	LocationID      string `json:"locationId"`
}

// AdjustInput is the input to the inventoryAdjustQuantities mutation.
type AdjustInput struct {
	Reason  string         `json:"reason"`
	Name    string         `json:"name"`
	Changes []AdjustChange `json:"changes"`
}

// UserError is a field-level business rejection returned by a mutation.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// AppliedChange echoes one applied quantity change.
type AppliedChange struct {
	Name  string `json:"name"`
	Delta int    `json:"delta"`
}

// AdjustResult is the outcome of an inventory adjustment mutation. Either
// UserErrors is non-empty (business rejection) or Changes holds the applied
// deltas.
type AdjustResult struct {
	Reason     string
	UserErrors []UserError
	Changes    []AppliedChange
}

// TransportError is a network- or protocol-level failure talking to the
// Admin API, as opposed to a business rejection. Callers treat these as
// plausibly transient.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("shopify: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

const (
	variantGIDPrefix = "gid://shopify/ProductVariant/"
	productGIDPrefix = "gid://shopify/Product/"
)

// VariantGID returns the global ID form of a variant reference. Bare numeric
// IDs (the form order webhooks carry) are prefixed; IDs already in GID form
// pass through.
func VariantGID(id string) string {
	if strings.HasPrefix(id, "gid://") {
		return id
	}
	return variantGIDPrefix + id
}

// ProductGID returns the global ID form of a product reference.
func ProductGID(id string) string {
	if strings.HasPrefix(id, "gid://") {
		return id
	}
	return productGIDPrefix + id
}

// IsProductGID reports whether the reference names a product rather than a
// variant.
func IsProductGID(id string) bool {
	return strings.HasPrefix(id, productGIDPrefix)
}
