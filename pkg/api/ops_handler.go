package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bundleworks/stockpilot/pkg/reconcile"
	"github.com/bundleworks/stockpilot/pkg/store"
)

const defaultListLimit = 50

// ResultStore is the slice of the result store the operator endpoints read.
type ResultStore interface {
	Get(ctx context.Context, runID string) (*store.ReconciliationRecord, error)
	List(ctx context.Context, limit int) ([]*store.ReconciliationRecord, error)
	ListByStatus(ctx context.Context, status reconcile.Status, limit int) ([]*store.ReconciliationRecord, error)
}

// Retrier re-runs the failed lines of a recorded reconciliation.
// *reconcile.Reconciler satisfies it.
type Retrier interface {
	RetryFailed(ctx context.Context, topic reconcile.Topic, orderID string, failed []reconcile.LineResult) (*reconcile.Outcome, error)
}

// OpsHandler exposes recorded reconciliation runs to the merchant-facing
// admin surface: list partial failures, inspect a run, retry its failed
// lines. Session-token middleware guards these routes.
type OpsHandler struct {
	results ResultStore
	retrier Retrier
	logger  *slog.Logger
}

// NewOpsHandler creates the operator endpoints handler.
func NewOpsHandler(results ResultStore, retrier Retrier) *OpsHandler {
	return &OpsHandler{
		results: results,
		retrier: retrier,
		logger:  slog.Default().With("component", "ops_handler"),
	}
}

// Register mounts the operator routes on mux.
func (h *OpsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ops/reconciliations", h.list)
	mux.HandleFunc("GET /ops/reconciliations/{runID}", h.get)
	mux.HandleFunc("POST /ops/reconciliations/{runID}/retry", h.retry)
}

// list serves GET /ops/reconciliations?status=partial_failure&limit=50.
func (h *OpsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var (
		records []*store.ReconciliationRecord
		err     error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		records, err = h.results.ListByStatus(r.Context(), reconcile.Status(status), limit)
	} else {
		records, err = h.results.List(r.Context(), limit)
	}
	if err != nil {
		WriteInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reconciliations": records})
}

// get serves GET /ops/reconciliations/{runID}.
func (h *OpsHandler) get(w http.ResponseWriter, r *http.Request) {
	record, err := h.results.Get(r.Context(), r.PathValue("runID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, "No reconciliation run with that ID")
			return
		}
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// retry serves POST /ops/reconciliations/{runID}/retry. Only the failed
// lines of the run are re-applied; succeeded lines are never touched again.
func (h *OpsHandler) retry(w http.ResponseWriter, r *http.Request) {
	record, err := h.results.Get(r.Context(), r.PathValue("runID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, "No reconciliation run with that ID")
			return
		}
		WriteInternal(w, err)
		return
	}

	failed := record.FailedLines()
	if len(failed) == 0 {
		WriteBadRequest(w, "Run has no failed lines to retry")
		return
	}

	outcome, err := h.retrier.RetryFailed(r.Context(), record.Topic, record.OrderID, failed)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "operator retry completed",
		"run_id", record.RunID,
		"order_id", record.OrderID,
		"status", outcome.Status,
		"lines", len(outcome.Results))
	writeJSON(w, http.StatusOK, outcome)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
