package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bundleworks/stockpilot/pkg/observability"
	"github.com/bundleworks/stockpilot/pkg/shopify"
)

// ErrInvalidPayload means the webhook body was not a decodable commerce
// event. The dedup key is never admitted in this case.
var ErrInvalidPayload = errors.New("invalid event payload")

// Recorder persists reconciliation outcomes for out-of-band operator
// remediation. Recording is best-effort: a recorder failure never fails the
// event.
type Recorder interface {
	Record(ctx context.Context, outcome *Outcome) error
}

// Reconciler orchestrates one webhook delivery: admit, extract, fan out,
// aggregate.
type Reconciler struct {
	dedup    Deduplicator
	catalog  Catalog
	resolver *LocationResolver
	adjuster *InventoryAdjuster
	recorder Recorder
	obs      *observability.Provider
	logger   *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithRecorder persists outcomes to the given recorder.
func WithRecorder(r Recorder) Option {
	return func(rec *Reconciler) { rec.recorder = r }
}

// WithObservability enables spans and RED metrics around event processing.
func WithObservability(p *observability.Provider) Option {
	return func(rec *Reconciler) { rec.obs = p }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(rec *Reconciler) { rec.logger = l }
}

// New creates a Reconciler over the given dedup guard and catalog.
func New(dedup Deduplicator, catalog Catalog, opts ...Option) *Reconciler {
	r := &Reconciler{
		dedup:    dedup,
		catalog:  catalog,
		resolver: NewLocationResolver(catalog),
		adjuster: NewInventoryAdjuster(catalog),
		logger:   slog.Default().With("component", "reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// topicAdjustment maps a handled topic to the sign of its quantity delta and
// the platform adjustment reason. Consumption (order paid) decreases stock;
// restock topics (refund, cancellation) increase it.
func topicAdjustment(t Topic) (sign int, reason string, ok bool) {
	switch t {
	case TopicOrdersPaid:
		return -1, ReasonShrinkage, true
	case TopicRefundsCreate, TopicOrdersCancelled:
		return +1, ReasonRestock, true
	}
	return 0, "", false
}

// Handle processes one authenticated webhook delivery.
//
// The returned error is non-nil only for failures before the fan-out starts
// (undecodable payload, manifest parse failure, dedup backend failure);
// those release the dedup key so the platform can redeliver. Per-line
// failures never surface as errors: they are aggregated into the outcome,
// the key stays admitted, and remediation happens out of band — redelivering
// the whole event would re-apply the lines that already succeeded.
func (r *Reconciler) Handle(ctx context.Context, topic Topic, body []byte) (outcome *Outcome, err error) {
	sign, reason, handled := topicAdjustment(topic)
	if !handled {
		// Acknowledge so the platform does not retry a topic we will
		// never act on. No catalog calls are made.
		var probe struct {
			ID json.Number `json:"id"`
		}
		_ = json.Unmarshal(body, &probe)
		return &Outcome{Status: StatusUnhandled, OrderID: probe.ID.String(), Topic: topic}, nil
	}

	var event CommerceEvent
	if uerr := json.Unmarshal(body, &event); uerr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, uerr)
	}

	key := Key{OrderID: event.OrderID(), Topic: topic}
	admitted, err := r.dedup.Admit(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("dedup admit: %w", err)
	}
	if !admitted {
		r.logger.InfoContext(ctx, "duplicate event skipped",
			"order_id", key.OrderID, "topic", topic)
		return &Outcome{Status: StatusDuplicate, OrderID: key.OrderID, Topic: topic}, nil
	}

	if r.obs != nil {
		var done func(error)
		ctx, done = r.obs.TrackOperation(ctx, "reconcile.event",
			attribute.String("webhook.topic", string(topic)))
		defer func() { done(err) }()
	}

	fannedOut := false
	defer func() {
		if p := recover(); p != nil {
			// Before the fan-out no adjustment has been applied, so the
			// key can be released for a clean redelivery.
			if !fannedOut {
				_ = r.dedup.Release(ctx, key)
			}
			outcome = nil
			err = fmt.Errorf("reconcile %s: panic: %v", key, p)
		}
	}()

	manifest, err := ExtractManifest(&event)
	if err != nil {
		_ = r.dedup.Release(ctx, key)
		return nil, err
	}
	if len(manifest) == 0 {
		return &Outcome{Status: StatusNoManifest, OrderID: key.OrderID, Topic: topic}, nil
	}

	// Resolve product references (the wipe/accessory line) to their first
	// variant once, here, so the fan-out is uniform. A failed indirection
	// pre-fails that single line without touching the others.
	targets := make([]SelectionEntry, len(manifest))
	prefail := make([]error, len(manifest))
	copy(targets, manifest)
	for i, entry := range manifest {
		if !entry.IsProduct {
			continue
		}
		variantID, rerr := r.catalog.ProductFirstVariant(ctx, entry.Ref)
		switch {
		case rerr != nil:
			prefail[i] = rerr
		case variantID == "":
			prefail[i] = &ResolutionError{Ref: entry.Ref, Kind: ResolutionNotFound}
		default:
			targets[i].Ref = variantID
			targets[i].IsProduct = false
		}
	}

	fannedOut = true
	results := r.fanOut(ctx, manifest, targets, prefail, sign, reason)

	status := StatusProcessed
	for _, res := range results {
		if !res.Success {
			status = StatusPartialFailure
			break
		}
	}
	outcome = &Outcome{Status: status, OrderID: key.OrderID, Topic: topic, Results: results}
	r.record(ctx, outcome)

	r.logger.InfoContext(ctx, "event reconciled",
		"order_id", key.OrderID, "topic", topic,
		"status", status, "lines", len(results))
	return outcome, nil
}

// RetryFailed re-runs the failed lines of a previously recorded outcome.
// Operator-initiated; bypasses deduplication because the original delivery
// already holds the key.
func (r *Reconciler) RetryFailed(ctx context.Context, topic Topic, orderID string, failed []LineResult) (*Outcome, error) {
	sign, reason, handled := topicAdjustment(topic)
	if !handled {
		return nil, fmt.Errorf("topic %s is not retryable", topic)
	}

	manifest := make([]SelectionEntry, 0, len(failed))
	for _, line := range failed {
		manifest = append(manifest, SelectionEntry{
			Ref:       line.SelectionID,
			IsProduct: line.Product,
			Quantity:  line.Quantity,
		})
	}
	if len(manifest) == 0 {
		return &Outcome{Status: StatusNoManifest, OrderID: orderID, Topic: topic}, nil
	}

	// The resolver handles product references directly here; the retry path
	// has no manifest-extraction step to front-load the indirection into.
	results := r.fanOut(ctx, manifest, manifest, make([]error, len(manifest)), sign, reason)

	status := StatusProcessed
	for _, res := range results {
		if !res.Success {
			status = StatusPartialFailure
			break
		}
	}
	outcome := &Outcome{Status: status, OrderID: orderID, Topic: topic, Results: results}
	r.record(ctx, outcome)
	return outcome, nil
}

// fanOut runs resolve+adjust for every line concurrently and aggregates the
// results in manifest order. Per-line failures (and panics) are contained:
// one bad line never blocks the others.
func (r *Reconciler) fanOut(ctx context.Context, manifest, targets []SelectionEntry, prefail []error, sign int, reason string) []LineResult {
	results := make([]LineResult, len(manifest))

	var wg sync.WaitGroup
	for i := range manifest {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					results[i] = failLine(lineBase(manifest[i]), fmt.Errorf("panic: %v", p))
				}
			}()
			results[i] = r.processLine(ctx, targets[i], manifest[i], prefail[i], sign, reason)
		}(i)
	}
	wg.Wait()

	return results
}

func (r *Reconciler) processLine(ctx context.Context, target, original SelectionEntry, pre error, sign int, reason string) LineResult {
	base := lineBase(original)
	if pre != nil {
		return failLine(base, pre)
	}

	ref, err := r.resolver.Resolve(ctx, target)
	if err != nil {
		return failLine(base, err)
	}

	delta := sign * original.Quantity
	if _, err := r.adjuster.Apply(ctx, ref, delta, reason); err != nil {
		return failLine(base, err)
	}

	base.Success = true
	base.Delta = delta
	return base
}

func (r *Reconciler) record(ctx context.Context, outcome *Outcome) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Record(ctx, outcome); err != nil {
		r.logger.ErrorContext(ctx, "failed to record reconciliation",
			"order_id", outcome.OrderID, "error", err)
	}
}

func lineBase(entry SelectionEntry) LineResult {
	return LineResult{
		SelectionID: entry.Ref,
		Quantity:    entry.Quantity,
		Product:     entry.IsProduct,
	}
}

func failLine(base LineResult, err error) LineResult {
	base.Success = false
	base.Error = err.Error()
	base.ErrorKind = classifyError(err)
	return base
}

func classifyError(err error) string {
	var resErr *ResolutionError
	var rejErr *AdjustmentRejectedError
	var transpErr *shopify.TransportError
	switch {
	case errors.As(err, &resErr):
		return "resolution_" + string(resErr.Kind)
	case errors.As(err, &rejErr):
		return "rejected"
	case errors.As(err, &transpErr):
		return "transport"
	}
	return "internal"
}
