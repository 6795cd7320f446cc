// Package reconcile implements the order-webhook inventory reconciliation
// engine: it admits commerce events exactly once per delivery window,
// resolves each bundle line item to the inventory item and location it
// affects, and applies signed quantity deltas against the Shopify Admin API.
package reconcile

import (
	"encoding/json"
	"strings"
)

// Topic identifies the kind of commerce event, normalized to enum form.
type Topic string

const (
	TopicOrdersPaid      Topic = "ORDERS_PAID"
	TopicRefundsCreate   Topic = "REFUNDS_CREATE"
	TopicOrdersCancelled Topic = "ORDERS_CANCELLED"
	TopicShopRedact      Topic = "SHOP_REDACT"
)

// ParseTopic normalizes a webhook topic header. Shopify sends the path form
// ("orders/paid"); the enum form ("ORDERS_PAID") passes through unchanged.
func ParseTopic(raw string) Topic {
	t := strings.ToUpper(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "/", "_")
	return Topic(t)
}

// LineItemProperty is one free-form name/value pair on an order line item.
type LineItemProperty struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LineItem is an order line item; the bundle manifest travels in its
// properties.
type LineItem struct {
	Properties []LineItemProperty `json:"properties"`
}

// CommerceEvent is the parsed webhook payload. ID and the topic together
// identify a physical event instance; redelivery of the same instance is not
// a new logical event.
type CommerceEvent struct {
	ID        json.Number `json:"id"`
	LineItems []LineItem  `json:"line_items"`
}

// OrderID returns the order identifier as an opaque string.
func (e *CommerceEvent) OrderID() string { return e.ID.String() }

// SelectionEntry is one resolved manifest line: a variant or product
// reference plus the quantity the bundle sold.
type SelectionEntry struct {
	Ref       string // bare numeric ID or gid:// reference
	IsProduct bool   // product reference: resolve to the product's first variant
	Quantity  int
}

// InventoryItemRef addresses the stock record a single adjustment targets.
// Never persisted: stock can move between locations between orders, so it is
// recomputed on every event.
type InventoryItemRef struct {
	InventoryItemID string
	LocationID      string
}

// LineResult is the outcome of one manifest line. The aggregate response
// carries these in manifest order regardless of completion order. Quantity
// and Product are retained so a partially failed order can be re-run from
// its recorded results.
type LineResult struct {
	SelectionID string `json:"selectionId"`
	Quantity    int    `json:"quantity,omitempty"`
	Product     bool   `json:"product,omitempty"`
	Success     bool   `json:"success"`
	Delta       int    `json:"delta,omitempty"`
	Error       string `json:"error,omitempty"`
	ErrorKind   string `json:"errorKind,omitempty"`
}

// Status classifies the overall outcome of handling one event.
type Status string

const (
	StatusProcessed      Status = "processed"
	StatusPartialFailure Status = "partial_failure"
	StatusDuplicate      Status = "duplicate"
	StatusNoManifest     Status = "no_manifest"
	StatusUnhandled      Status = "unhandled_topic"
)

// Outcome is the aggregate result of one webhook delivery.
type Outcome struct {
	Status  Status       `json:"status"`
	OrderID string       `json:"orderId"`
	Topic   Topic        `json:"topic"`
	Results []LineResult `json:"results,omitempty"`
}

// Processed reports whether any adjustment work was attempted.
func (o *Outcome) Processed() bool {
	return o.Status == StatusProcessed || o.Status == StatusPartialFailure
}
