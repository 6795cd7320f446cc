package reconcile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bundleworks/stockpilot/pkg/reconcile"
	"github.com/bundleworks/stockpilot/pkg/shopify"
)

func TestApply_SubmitsSingleChange(t *testing.T) {
	catalog := newFakeCatalog()
	adjuster := reconcile.NewInventoryAdjuster(catalog)

	ref := reconcile.InventoryItemRef{InventoryItemID: "999", LocationID: "L1"}
	result, err := adjuster.Apply(context.Background(), ref, -2, reconcile.ReasonShrinkage)
	require.NoError(t, err)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, -2, result.Changes[0].Delta)

	_, _, adjusts := catalog.calls()
	require.Len(t, adjusts, 1)
	assert.Equal(t, reconcile.ReasonShrinkage, adjusts[0].Reason)
	assert.Equal(t, "available", adjusts[0].Name)
	require.Len(t, adjusts[0].Changes, 1)
	assert.Equal(t, "999", adjusts[0].Changes[0].InventoryItemID)
	assert.Equal(t, "L1", adjusts[0].Changes[0].LocationID)
}

func TestApply_UserErrorsBecomeRejection(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.rejections["999"] = []shopify.UserError{
		{Field: []string{"input", "changes"}, Message: "invalid location"},
	}
	adjuster := reconcile.NewInventoryAdjuster(catalog)

	ref := reconcile.InventoryItemRef{InventoryItemID: "999", LocationID: "L1"}
	_, err := adjuster.Apply(context.Background(), ref, 1, reconcile.ReasonRestock)

	var rejErr *reconcile.AdjustmentRejectedError
	require.ErrorAs(t, err, &rejErr)
	require.Len(t, rejErr.UserErrors, 1)
	assert.Equal(t, "invalid location", rejErr.UserErrors[0].Message)
	assert.Contains(t, err.Error(), "invalid location")
}

func TestApply_TransportErrorPassesThrough(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.adjustErr["999"] = &shopify.TransportError{Op: "inventoryAdjustQuantities", Err: context.DeadlineExceeded}
	adjuster := reconcile.NewInventoryAdjuster(catalog)

	ref := reconcile.InventoryItemRef{InventoryItemID: "999", LocationID: "L1"}
	_, err := adjuster.Apply(context.Background(), ref, 1, reconcile.ReasonRestock)

	var transpErr *shopify.TransportError
	require.ErrorAs(t, err, &transpErr)
}
