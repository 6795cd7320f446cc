package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/bundleworks/stockpilot/pkg/reconcile"
)

// WebhookResponse is the body returned to the platform for every accepted
// delivery. Success is false only for partial failures, which are still
// HTTP 200: redelivering the whole event would re-apply the lines that
// already succeeded.
type WebhookResponse struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Status  reconcile.Status       `json:"status"`
	OrderID string                 `json:"orderId"`
	Results []reconcile.LineResult `json:"results,omitempty"`
}

func newWebhookResponse(outcome *reconcile.Outcome) WebhookResponse {
	resp := WebhookResponse{
		Success: outcome.Status != reconcile.StatusPartialFailure,
		Status:  outcome.Status,
		OrderID: outcome.OrderID,
		Results: outcome.Results,
	}
	switch outcome.Status {
	case reconcile.StatusProcessed:
		resp.Message = "order reconciled"
	case reconcile.StatusPartialFailure:
		resp.Message = "order reconciled with failed lines"
	case reconcile.StatusDuplicate:
		resp.Message = "duplicate delivery, skipped"
	case reconcile.StatusNoManifest:
		resp.Message = "no bundle manifest, nothing to do"
	case reconcile.StatusUnhandled:
		resp.Message = "topic not handled"
	}
	return resp
}

// EventProcessor handles one authenticated webhook delivery.
// *reconcile.Reconciler satisfies it.
type EventProcessor interface {
	Handle(ctx context.Context, topic reconcile.Topic, body []byte) (*reconcile.Outcome, error)
}

// WebhookHandler is the intake endpoint for platform order webhooks. The
// HMAC middleware in front of it has already authenticated the body.
type WebhookHandler struct {
	processor EventProcessor
	logger    *slog.Logger
}

// NewWebhookHandler creates the webhook intake handler.
func NewWebhookHandler(processor EventProcessor) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		logger:    slog.Default().With("component", "webhook_handler"),
	}
}

// Handle serves POST /webhooks/orders.
//
// Status mapping: 200 for processed, duplicate and no-op outcomes (including
// partial failures, which are remediated out of band, not by platform
// redelivery); 400 for payloads the merchant must fix (undecodable event,
// malformed bundle manifest); 500 for infrastructure failures before the
// fan-out, which the platform retries.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteBadRequest(w, "Unable to read request body")
		return
	}

	topic := reconcile.ParseTopic(r.Header.Get(HeaderShopifyTopic))
	outcome, err := h.processor.Handle(r.Context(), topic, body)
	if err != nil {
		var parseErr *reconcile.ManifestParseError
		switch {
		case errors.Is(err, reconcile.ErrInvalidPayload):
			WriteBadRequest(w, "Event payload is not decodable")
		case errors.As(err, &parseErr):
			h.logger.WarnContext(r.Context(), "bundle manifest rejected",
				"topic", topic, "property", parseErr.Property, "error", err)
			WriteBadRequest(w, "Bundle manifest is malformed")
		default:
			WriteInternal(w, err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(newWebhookResponse(outcome))
}
