package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bundleworks/stockpilot/pkg/api"
	"github.com/bundleworks/stockpilot/pkg/reconcile"
	"github.com/bundleworks/stockpilot/pkg/store"
)

type fakeResultStore struct {
	records map[string]*store.ReconciliationRecord
}

func (f *fakeResultStore) Get(_ context.Context, runID string) (*store.ReconciliationRecord, error) {
	rec, ok := f.records[runID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (f *fakeResultStore) List(_ context.Context, limit int) ([]*store.ReconciliationRecord, error) {
	var out []*store.ReconciliationRecord
	for _, rec := range f.records {
		if len(out) == limit {
			break
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeResultStore) ListByStatus(_ context.Context, status reconcile.Status, limit int) ([]*store.ReconciliationRecord, error) {
	var out []*store.ReconciliationRecord
	for _, rec := range f.records {
		if rec.Status == status && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeRetrier struct {
	outcome    *reconcile.Outcome
	lastTopic  reconcile.Topic
	lastOrder  string
	lastFailed []reconcile.LineResult
}

func (f *fakeRetrier) RetryFailed(_ context.Context, topic reconcile.Topic, orderID string, failed []reconcile.LineResult) (*reconcile.Outcome, error) {
	f.lastTopic = topic
	f.lastOrder = orderID
	f.lastFailed = failed
	return f.outcome, nil
}

func partialRecord(runID string) *store.ReconciliationRecord {
	return &store.ReconciliationRecord{
		RunID:   runID,
		OrderID: "1001",
		Topic:   reconcile.TopicOrdersPaid,
		Status:  reconcile.StatusPartialFailure,
		Results: []reconcile.LineResult{
			{SelectionID: "100", Quantity: 1, Success: true, Delta: -1},
			{SelectionID: "200", Quantity: 2, Success: false, ErrorKind: "transport"},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func newOpsServer(results api.ResultStore, retrier api.Retrier) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewOpsHandler(results, retrier).Register(mux)
	return mux
}

func TestOps_ListByStatus(t *testing.T) {
	results := &fakeResultStore{records: map[string]*store.ReconciliationRecord{
		"run-1": partialRecord("run-1"),
	}}
	mux := newOpsServer(results, &fakeRetrier{})

	req := httptest.NewRequest(http.MethodGet, "/ops/reconciliations?status=partial_failure", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Reconciliations []*store.ReconciliationRecord `json:"reconciliations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Reconciliations, 1)
	assert.Equal(t, "run-1", payload.Reconciliations[0].RunID)
}

func TestOps_ListRejectsBadLimit(t *testing.T) {
	mux := newOpsServer(&fakeResultStore{}, &fakeRetrier{})

	req := httptest.NewRequest(http.MethodGet, "/ops/reconciliations?limit=zero", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOps_GetRun(t *testing.T) {
	results := &fakeResultStore{records: map[string]*store.ReconciliationRecord{
		"run-1": partialRecord("run-1"),
	}}
	mux := newOpsServer(results, &fakeRetrier{})

	req := httptest.NewRequest(http.MethodGet, "/ops/reconciliations/run-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var record store.ReconciliationRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "1001", record.OrderID)
}

func TestOps_GetUnknownRun(t *testing.T) {
	mux := newOpsServer(&fakeResultStore{}, &fakeRetrier{})

	req := httptest.NewRequest(http.MethodGet, "/ops/reconciliations/missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOps_RetryReRunsFailedLines(t *testing.T) {
	results := &fakeResultStore{records: map[string]*store.ReconciliationRecord{
		"run-1": partialRecord("run-1"),
	}}
	retrier := &fakeRetrier{outcome: &reconcile.Outcome{
		Status:  reconcile.StatusProcessed,
		OrderID: "1001",
		Topic:   reconcile.TopicOrdersPaid,
		Results: []reconcile.LineResult{{SelectionID: "200", Quantity: 2, Success: true, Delta: -2}},
	}}
	mux := newOpsServer(results, retrier)

	req := httptest.NewRequest(http.MethodPost, "/ops/reconciliations/run-1/retry", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, reconcile.TopicOrdersPaid, retrier.lastTopic)
	assert.Equal(t, "1001", retrier.lastOrder)
	require.Len(t, retrier.lastFailed, 1, "only the failed line is handed to the retrier")
	assert.Equal(t, "200", retrier.lastFailed[0].SelectionID)
}

func TestOps_RetryWithNoFailedLines(t *testing.T) {
	clean := partialRecord("run-2")
	clean.Status = reconcile.StatusProcessed
	clean.Results = []reconcile.LineResult{{SelectionID: "100", Success: true, Delta: -1}}
	results := &fakeResultStore{records: map[string]*store.ReconciliationRecord{"run-2": clean}}
	mux := newOpsServer(results, &fakeRetrier{})

	req := httptest.NewRequest(http.MethodPost, "/ops/reconciliations/run-2/retry", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
