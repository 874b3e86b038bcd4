package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/orderflow/orderflow/internal/order/domain"
)

// UserDirectory is the boundary to the user records in the shared store,
// consulted to fail fast before any stock is touched.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// ResultCache is an optional fast path for idempotency lookups. The
// journal stays authoritative; cache errors are logged and ignored.
type ResultCache interface {
	Lookup(ctx context.Context, idempotencyKey string) ([]byte, bool, error)
	Save(ctx context.Context, idempotencyKey string, payload []byte) error
}

// Coordinator sequences one reservation request: idempotency lookup,
// pending marker, engine reserve, journal append. Exactly-once stock
// effect per idempotency key: a retried call either returns the original
// record or a fresh, correctly evaluated one, never a double decrement.
type Coordinator struct {
	log     *slog.Logger
	engine  *Engine
	journal Journal
	markers MarkerStore
	users   UserDirectory
	cache   ResultCache
}

func NewCoordinator(log *slog.Logger, engine *Engine, journal Journal, markers MarkerStore, users UserDirectory, cache ResultCache) *Coordinator {
	return &Coordinator{
		log:     log,
		engine:  engine,
		journal: journal,
		markers: markers,
		users:   users,
		cache:   cache,
	}
}

// PlaceOrder runs the reservation state machine. The returned record is
// the journal entry for idempotencyKey; for rejected entries the error is
// ErrInsufficientStock so callers can map status codes uniformly whether
// the rejection is fresh or replayed.
func (c *Coordinator) PlaceOrder(ctx context.Context, userID, productID string, quantity int64, idempotencyKey string) (domain.Order, error) {
	if idempotencyKey == "" {
		return domain.Order{}, fmt.Errorf("idempotency key required")
	}

	if rec, ok := c.cachedResult(ctx, idempotencyKey); ok {
		return c.resultFor(rec)
	}
	rec, found, err := c.journal.LookupByKey(ctx, idempotencyKey)
	if err != nil {
		return domain.Order{}, fmt.Errorf("idempotency lookup: %w", err)
	}
	if found {
		c.cacheResult(ctx, rec)
		return c.resultFor(rec)
	}

	if quantity <= 0 {
		return domain.Order{}, ErrInvalidQuantity
	}
	exists, err := c.users.Exists(ctx, userID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("user lookup: %w", err)
	}
	if !exists {
		return domain.Order{}, ErrUserNotFound
	}

	// The marker brackets the dual write. Its order ID is fixed now so the
	// reconciler can complete an interrupted append deterministically.
	orderID := uuid.NewString()
	err = c.markers.Create(ctx, Marker{
		IdempotencyKey: idempotencyKey,
		OrderID:        orderID,
		UserID:         userID,
		ProductID:      productID,
		Quantity:       quantity,
		State:          MarkerPending,
	})
	if errors.Is(err, ErrMarkerExists) {
		// A concurrent request carries the same key. It may have finished
		// between our journal lookup and now.
		if rec, found, lerr := c.journal.LookupByKey(ctx, idempotencyKey); lerr == nil && found {
			return c.resultFor(rec)
		}
		return domain.Order{}, ErrRequestInFlight
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("create marker: %w", err)
	}

	err = c.engine.Reserve(ctx, productID, quantity, idempotencyKey)
	switch {
	case err == nil:
		return c.commit(ctx, domain.NewCommitted(orderID, userID, productID, quantity, idempotencyKey))

	case errors.Is(err, ErrInsufficientStock):
		// Rejections are journaled for audit. Stock is untouched, so the
		// marker is still pending and safe to drop.
		rec, aerr := c.journal.Append(ctx, domain.NewRejected(orderID, userID, productID, quantity, idempotencyKey))
		if aerr != nil {
			_ = c.markers.DeletePending(ctx, idempotencyKey)
			return domain.Order{}, fmt.Errorf("%w: %v", ErrDurability, aerr)
		}
		_ = c.markers.DeletePending(ctx, idempotencyKey)
		c.cacheResult(ctx, rec)
		return rec, ErrInsufficientStock

	default:
		// ProductNotFound, contention, cancellation. Only a pending marker
		// may be dropped here: if the decrement transaction committed but
		// its ack was lost, the marker is reserved and the reconciler will
		// complete the journal entry.
		_ = c.markers.DeletePending(ctx, idempotencyKey)
		return domain.Order{}, err
	}
}

func (c *Coordinator) commit(ctx context.Context, order domain.Order) (domain.Order, error) {
	rec, err := c.journal.Append(ctx, order)
	if err != nil {
		// Stock is decremented but the order is not journaled. The marker
		// is reserved; the reconciler completes the append from it.
		c.log.Error("journal append failed after decrement",
			"order_id", order.ID, "idempotency_key", order.IdempotencyKey, "err", err)
		return domain.Order{}, fmt.Errorf("%w: %v", ErrDurability, err)
	}
	if err := c.markers.Delete(ctx, order.IdempotencyKey); err != nil {
		// Harmless: the reconciler will find the journal entry and drop it.
		c.log.Warn("marker cleanup failed", "idempotency_key", order.IdempotencyKey, "err", err)
	}
	c.cacheResult(ctx, rec)
	return rec, nil
}

func (c *Coordinator) resultFor(rec domain.Order) (domain.Order, error) {
	if rec.Status == domain.StatusRejected {
		return rec, ErrInsufficientStock
	}
	return rec, nil
}

func (c *Coordinator) cachedResult(ctx context.Context, key string) (domain.Order, bool) {
	if c.cache == nil {
		return domain.Order{}, false
	}
	payload, ok, err := c.cache.Lookup(ctx, key)
	if err != nil {
		c.log.Warn("idempotency cache lookup failed", "err", err)
		return domain.Order{}, false
	}
	if !ok {
		return domain.Order{}, false
	}
	var rec domain.Order
	if err := json.Unmarshal(payload, &rec); err != nil {
		c.log.Warn("idempotency cache entry corrupt", "key", key, "err", err)
		return domain.Order{}, false
	}
	return rec, true
}

func (c *Coordinator) cacheResult(ctx context.Context, rec domain.Order) {
	if c.cache == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.cache.Save(ctx, rec.IdempotencyKey, payload); err != nil {
		c.log.Warn("idempotency cache save failed", "err", err)
	}
}
