package shopify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bundleworks/stockpilot/pkg/shopify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *shopify.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return shopify.NewClient(shopify.Options{
		Token:    "test-token",
		Endpoint: srv.URL,
		RPS:      1000,
		Burst:    1000,
	})
}

func TestVariantInventoryItem(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("X-Shopify-Access-Token"))

		var req struct {
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gid://shopify/ProductVariant/555", req.Variables["variantId"])

		_, _ = w.Write([]byte(`{"data":{"productVariant":{"inventoryItem":{
			"id":"gid://shopify/InventoryItem/999",
			"inventoryLevels":{"edges":[
				{"node":{"location":{"id":"L1"},"quantities":[{"name":"available","quantity":10}]}},
				{"node":{"location":{"id":"L2"},"quantities":[{"name":"available","quantity":4}]}}
			]}}}}}`))
	})

	item, err := client.VariantInventoryItem(context.Background(), "555")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "gid://shopify/InventoryItem/999", item.ID)
	require.Len(t, item.Levels, 2)
	assert.Equal(t, "L1", item.Levels[0].LocationID)
	assert.Equal(t, 10, item.Levels[0].Available)
}

func TestVariantInventoryItem_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"productVariant":null}}`))
	})

	item, err := client.VariantInventoryItem(context.Background(), "404")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestProductFirstVariant(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gid://shopify/Product/77", req.Variables["productId"])

		_, _ = w.Write([]byte(`{"data":{"product":{"variants":{"edges":[{"node":{"id":"gid://shopify/ProductVariant/771"}}]}}}}`))
	})

	variantID, err := client.ProductFirstVariant(context.Background(), "77")
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/ProductVariant/771", variantID)
}

func TestProductFirstVariant_NoVariants(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"product":{"variants":{"edges":[]}}}}`))
	})

	variantID, err := client.ProductFirstVariant(context.Background(), "77")
	require.NoError(t, err)
	assert.Empty(t, variantID)
}

func TestAdjustQuantities_UserErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"inventoryAdjustQuantities":{
			"userErrors":[{"field":["input","changes"],"message":"cannot reduce below zero"}],
			"inventoryAdjustmentGroup":null}}}`))
	})

	result, err := client.AdjustQuantities(context.Background(), shopify.AdjustInput{
		Reason: "shrinkage",
		Name:   "available",
		Changes: []shopify.AdjustChange{
			{Delta: -2, InventoryItemID: "gid://shopify/InventoryItem/999", LocationID: "L1"},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.UserErrors, 1)
	assert.Equal(t, "cannot reduce below zero", result.UserErrors[0].Message)
}

func TestAdjustQuantities_Applied(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables struct {
				Input shopify.AdjustInput `json:"input"`
			} `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "restock", req.Variables.Input.Reason)
		assert.Equal(t, "available", req.Variables.Input.Name)
		require.Len(t, req.Variables.Input.Changes, 1)
		assert.Equal(t, 3, req.Variables.Input.Changes[0].Delta)

		_, _ = w.Write([]byte(`{"data":{"inventoryAdjustQuantities":{
			"userErrors":[],
			"inventoryAdjustmentGroup":{"reason":"restock","changes":[{"name":"available","delta":3}]}}}}`))
	})

	result, err := client.AdjustQuantities(context.Background(), shopify.AdjustInput{
		Reason: "restock",
		Name:   "available",
		Changes: []shopify.AdjustChange{
			{Delta: 3, InventoryItemID: "gid://shopify/InventoryItem/999", LocationID: "L1"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, result.UserErrors)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, 3, result.Changes[0].Delta)
}

func TestDo_TransportErrors(t *testing.T) {
	t.Run("http 500", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		_, err := client.VariantInventoryItem(context.Background(), "1")
		var terr *shopify.TransportError
		require.ErrorAs(t, err, &terr)
	})

	t.Run("graphql top-level error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"errors":[{"message":"Throttled"}]}`))
		})
		_, err := client.VariantInventoryItem(context.Background(), "1")
		var terr *shopify.TransportError
		require.ErrorAs(t, err, &terr)
		assert.Contains(t, terr.Error(), "Throttled")
	})

	t.Run("connection refused", func(t *testing.T) {
		client := shopify.NewClient(shopify.Options{
			Endpoint: "http://127.0.0.1:1",
			RPS:      1000,
		})
		_, err := client.VariantInventoryItem(context.Background(), "1")
		var terr *shopify.TransportError
		require.ErrorAs(t, err, &terr)
	})
}

func TestGIDHelpers(t *testing.T) {
	assert.Equal(t, "gid://shopify/ProductVariant/5", shopify.VariantGID("5"))
	assert.Equal(t, "gid://shopify/ProductVariant/5", shopify.VariantGID("gid://shopify/ProductVariant/5"))
	assert.Equal(t, "gid://shopify/Product/7", shopify.ProductGID("7"))
	assert.True(t, shopify.IsProductGID("gid://shopify/Product/7"))
	assert.False(t, shopify.IsProductGID("gid://shopify/ProductVariant/5"))
}
