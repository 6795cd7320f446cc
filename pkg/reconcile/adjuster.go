package reconcile

import (
	"context"

	"github.com/bundleworks/stockpilot/pkg/shopify"
)

// Platform-recognized adjustment reasons.
const (
	ReasonShrinkage  = "shrinkage"
	ReasonRestock    = "restock"
	ReasonCorrection = "correction"
)

// InventoryAdjuster applies one signed quantity delta to one
// (inventory item, location) pair. A single remote call per invocation;
// retry policy belongs to the orchestrator.
type InventoryAdjuster struct {
	catalog Catalog
}

// NewInventoryAdjuster creates an adjuster over the given catalog.
func NewInventoryAdjuster(catalog Catalog) *InventoryAdjuster {
	return &InventoryAdjuster{catalog: catalog}
}

// Apply submits the adjustment. Field-level userErrors become an
// *AdjustmentRejectedError (not transient); transport failures pass through
// as *shopify.TransportError (plausibly transient). The sign of delta is the
// caller's decision, not this component's.
func (a *InventoryAdjuster) Apply(ctx context.Context, ref InventoryItemRef, delta int, reason string) (*shopify.AdjustResult, error) {
	result, err := a.catalog.AdjustQuantities(ctx, shopify.AdjustInput{
		Reason: reason,
		Name:   "available",
		Changes: []shopify.AdjustChange{{
			Delta:           delta,
			InventoryItemID: ref.InventoryItemID,
			LocationID:      ref.LocationID,
		}},
	})
	if err != nil {
		return nil, err
	}
	if len(result.UserErrors) > 0 {
		return nil, &AdjustmentRejectedError{UserErrors: result.UserErrors}
	}
	return result, nil
}
