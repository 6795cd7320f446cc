package reconcile

import (
	"context"

	"github.com/bundleworks/stockpilot/pkg/shopify"
)

// Catalog is the slice of the Shopify Admin API the reconciler consumes.
// *shopify.Client satisfies it.
type Catalog interface {
	VariantInventoryItem(ctx context.Context, variantID string) (*shopify.InventoryItem, error)
	ProductFirstVariant(ctx context.Context, productID string) (string, error)
	AdjustQuantities(ctx context.Context, input shopify.AdjustInput) (*shopify.AdjustResult, error)
}

// LocationResolver resolves a selection to the inventory item and location
// an adjustment should target. Read-only against the catalog.
type LocationResolver struct {
	catalog Catalog
}

// NewLocationResolver creates a resolver over the given catalog.
func NewLocationResolver(catalog Catalog) *LocationResolver {
	return &LocationResolver{catalog: catalog}
}

// Resolve maps one selection to an InventoryItemRef.
//
// Product references (the wipe/accessory case) resolve through the product's
// first variant. Location policy: among the first page of inventory levels,
// the location with the maximum available quantity wins, ties broken by
// first-seen order. Earlier revisions of this system disagreed between
// "first location" and "max available"; max-available is the canonical
// policy here.
func (r *LocationResolver) Resolve(ctx context.Context, entry SelectionEntry) (InventoryItemRef, error) {
	variantID := entry.Ref
	if entry.IsProduct {
		resolved, err := r.catalog.ProductFirstVariant(ctx, entry.Ref)
		if err != nil {
			return InventoryItemRef{}, err
		}
		if resolved == "" {
			return InventoryItemRef{}, &ResolutionError{Ref: entry.Ref, Kind: ResolutionNotFound}
		}
		variantID = resolved
	}

	item, err := r.catalog.VariantInventoryItem(ctx, variantID)
	if err != nil {
		return InventoryItemRef{}, err
	}
	if item == nil {
		return InventoryItemRef{}, &ResolutionError{Ref: entry.Ref, Kind: ResolutionNotFound}
	}
	if len(item.Levels) == 0 {
		return InventoryItemRef{}, &ResolutionError{Ref: entry.Ref, Kind: ResolutionNoLocation}
	}

	best := item.Levels[0]
	for _, level := range item.Levels[1:] {
		if level.Available > best.Available {
			best = level
		}
	}

	return InventoryItemRef{
		InventoryItemID: item.ID,
		LocationID:      best.LocationID,
	}, nil
}
