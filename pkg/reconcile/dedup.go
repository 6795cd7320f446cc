package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Key identifies one logical commerce event for deduplication purposes.
type Key struct {
	OrderID string
	Topic   Topic
}

func (k Key) String() string { return k.OrderID + ":" + string(k.Topic) }

// Deduplicator is the process-wide idempotency guard for webhook deliveries.
//
// Admit records the key and returns true if it was not already present; the
// check-and-insert is atomic across concurrent deliveries. Release removes a
// key so a later Admit succeeds — used only when the event could not be
// meaningfully processed (parse or auth failure), never because a downstream
// adjustment failed. Sweep clears the whole set: a coarse safety valve
// against unbounded growth, not a correctness mechanism.
type Deduplicator interface {
	Admit(ctx context.Context, key Key) (bool, error)
	Release(ctx context.Context, key Key) error
	Sweep(ctx context.Context) error
}

// MemoryDeduplicator keeps the key set in process memory. State does not
// survive restarts; redelivery after a restart is treated as a fresh logical
// admission.
type MemoryDeduplicator struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemoryDeduplicator creates an empty in-memory deduplicator.
func NewMemoryDeduplicator() *MemoryDeduplicator {
	return &MemoryDeduplicator{keys: make(map[string]struct{})}
}

// Admit performs an atomic check-and-insert.
func (d *MemoryDeduplicator) Admit(_ context.Context, key Key) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, seen := d.keys[key.String()]; seen {
		return false, nil
	}
	d.keys[key.String()] = struct{}{}
	return true, nil
}

// Release removes a key, permitting a future Admit to succeed.
func (d *MemoryDeduplicator) Release(_ context.Context, key Key) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.keys, key.String())
	return nil
}

// Sweep clears the entire key set.
func (d *MemoryDeduplicator) Sweep(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = make(map[string]struct{})
	return nil
}

// Len returns the number of admitted keys.
func (d *MemoryDeduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.keys)
}

// StartSweeper sweeps the deduplicator on a fixed interval until ctx is
// cancelled. A sweep racing an in-flight admission may at worst readmit a
// just-cleared key, which errs toward reprocessing rather than silent drops.
func StartSweeper(ctx context.Context, d Deduplicator, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.Sweep(ctx); err != nil {
					logger.ErrorContext(ctx, "dedup sweep failed", "error", err)
				}
			}
		}
	}()
}
