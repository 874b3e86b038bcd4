package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/orderflow/orderflow/internal/order/domain"
)

const (
	defaultStaleAfter    = 30 * time.Second
	defaultSweepInterval = 10 * time.Second
)

// Reconciler closes the dual-write crash window. A reserved marker with no
// journal entry means stock was decremented but the order never journaled;
// the entry is completed from the marker, since the decrement is already
// durable and completing it preserves conservation. A stale pending marker
// means the decrement transaction never committed and is dropped.
type Reconciler struct {
	log        *slog.Logger
	journal    Journal
	markers    MarkerStore
	staleAfter time.Duration
	interval   time.Duration
}

func NewReconciler(log *slog.Logger, journal Journal, markers MarkerStore) *Reconciler {
	return &Reconciler{
		log:        log,
		journal:    journal,
		markers:    markers,
		staleAfter: defaultStaleAfter,
		interval:   defaultSweepInterval,
	}
}

// Run sweeps once immediately (startup recovery), then periodically until
// ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	if err := r.SweepOnce(ctx); err != nil {
		r.log.Error("startup reconciliation failed", "err", err)
	}

	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := r.SweepOnce(ctx); err != nil {
				r.log.Error("reconciliation sweep failed", "err", err)
			}
		}
	}
}

// SweepOnce resolves every marker older than the stale cutoff.
func (r *Reconciler) SweepOnce(ctx context.Context) error {
	stale, err := r.markers.ListStale(ctx, time.Now().Add(-r.staleAfter))
	if err != nil {
		return fmt.Errorf("list stale markers: %w", err)
	}

	for _, m := range stale {
		if err := r.resolve(ctx, m); err != nil {
			r.log.Error("marker resolution failed",
				"idempotency_key", m.IdempotencyKey, "state", m.State, "err", err)
		}
	}
	return nil
}

func (r *Reconciler) resolve(ctx context.Context, m Marker) error {
	switch m.State {
	case MarkerReserved:
		// Append is idempotent on the key, so this also covers the case
		// where only the marker delete was lost.
		rec := domain.NewCommitted(m.OrderID, m.UserID, m.ProductID, m.Quantity, m.IdempotencyKey)
		if _, err := r.journal.Append(ctx, rec); err != nil {
			return fmt.Errorf("complete journal entry: %w", err)
		}
		r.log.Info("completed interrupted reservation",
			"order_id", m.OrderID, "idempotency_key", m.IdempotencyKey)
		return r.markers.Delete(ctx, m.IdempotencyKey)

	case MarkerPending:
		r.log.Info("dropping abandoned reservation marker",
			"idempotency_key", m.IdempotencyKey)
		return r.markers.DeletePending(ctx, m.IdempotencyKey)

	default:
		return fmt.Errorf("unknown marker state %q", m.State)
	}
}
