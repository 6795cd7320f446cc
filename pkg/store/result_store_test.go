package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bundleworks/stockpilot/pkg/reconcile"
	"github.com/bundleworks/stockpilot/pkg/store"
)

func newTestStore(t *testing.T) *store.SQLiteResultStore {
	t.Helper()
	s, db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return s
}

func sampleOutcome(orderID string, status reconcile.Status) *reconcile.Outcome {
	return &reconcile.Outcome{
		Status:  status,
		OrderID: orderID,
		Topic:   reconcile.TopicOrdersPaid,
		Results: []reconcile.LineResult{
			{SelectionID: "100", Quantity: 1, Success: true, Delta: -1},
			{SelectionID: "200", Quantity: 2, Success: false, Error: "resolve 200: not_found", ErrorKind: "resolution_not_found"},
		},
	}
}

func TestRecordAndLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, sampleOutcome("1001", reconcile.StatusPartialFailure)))

	rec, err := s.Latest(ctx, "1001", reconcile.TopicOrdersPaid)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.RunID)
	assert.Equal(t, "1001", rec.OrderID)
	assert.Equal(t, reconcile.StatusPartialFailure, rec.Status)
	require.Len(t, rec.Results, 2)
	assert.Equal(t, -1, rec.Results[0].Delta)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestLatest_PicksNewestRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, sampleOutcome("1001", reconcile.StatusPartialFailure)))
	require.NoError(t, s.Record(ctx, &reconcile.Outcome{
		Status:  reconcile.StatusProcessed,
		OrderID: "1001",
		Topic:   reconcile.TopicOrdersPaid,
		Results: []reconcile.LineResult{{SelectionID: "200", Quantity: 2, Success: true, Delta: -2}},
	}))

	rec, err := s.Latest(ctx, "1001", reconcile.TopicOrdersPaid)
	require.NoError(t, err)
	assert.Equal(t, reconcile.StatusProcessed, rec.Status)
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLatest_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Latest(context.Background(), "1001", reconcile.TopicOrdersPaid)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, sampleOutcome("1001", reconcile.StatusPartialFailure)))
	require.NoError(t, s.Record(ctx, sampleOutcome("1002", reconcile.StatusProcessed)))
	require.NoError(t, s.Record(ctx, sampleOutcome("1003", reconcile.StatusPartialFailure)))

	failed, err := s.ListByStatus(ctx, reconcile.StatusPartialFailure, 10)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	for _, rec := range failed {
		assert.Equal(t, reconcile.StatusPartialFailure, rec.Status)
	}
}

func TestList_RespectsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3", "4"} {
		require.NoError(t, s.Record(ctx, sampleOutcome(id, reconcile.StatusProcessed)))
	}

	records, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestFailedLines(t *testing.T) {
	rec := &store.ReconciliationRecord{
		Results: []reconcile.LineResult{
			{SelectionID: "100", Success: true},
			{SelectionID: "200", Success: false},
			{SelectionID: "300", Success: false},
		},
	}
	failed := rec.FailedLines()
	require.Len(t, failed, 2)
	assert.Equal(t, "200", failed[0].SelectionID)
	assert.Equal(t, "300", failed[1].SelectionID)
}
