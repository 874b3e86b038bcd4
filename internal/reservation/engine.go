package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts = 5
	defaultBaseBackoff = 5 * time.Millisecond
	maxBackoff         = 500 * time.Millisecond
)

// Engine performs the atomic check-and-decrement. It closes the classic
// check-then-act race with optimistic concurrency: read (quantity, version),
// attempt a conditional write guarded by the unchanged version, retry on
// conflict with exponential backoff. First committer wins; the loser
// re-evaluates against the now-current quantity.
type Engine struct {
	log         *slog.Logger
	ledger      StockLedger
	maxAttempts int
	baseBackoff time.Duration
}

type EngineOption func(*Engine)

// WithMaxAttempts bounds the internal retry loop.
func WithMaxAttempts(n int) EngineOption {
	return func(e *Engine) { e.maxAttempts = n }
}

// WithBaseBackoff sets the first retry delay; later attempts double it.
func WithBaseBackoff(d time.Duration) EngineOption {
	return func(e *Engine) { e.baseBackoff = d }
}

func NewEngine(log *slog.Logger, ledger StockLedger, opts ...EngineOption) *Engine {
	e := &Engine{
		log:         log,
		ledger:      ledger,
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reserve atomically tests and commits a decrement of quantity against
// productID. On return without error the decrement is durable and the
// marker for reservationKey has been flipped to reserved.
//
// Version conflicts are absorbed here, invisible to the caller, up to the
// attempt budget; exhausting it surfaces as ErrContention, which the caller
// may retry with the same idempotency key.
func (e *Engine) Reserve(ctx context.Context, productID string, quantity int64, reservationKey string) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := e.backoff(ctx, attempt); err != nil {
				return err
			}
		}

		stock, err := e.ledger.Get(ctx, productID)
		if err != nil {
			return fmt.Errorf("read stock: %w", err)
		}
		if stock.Quantity < quantity {
			return ErrInsufficientStock
		}

		err = e.ledger.Decrement(ctx, productID, quantity, stock.Version, reservationKey)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return fmt.Errorf("decrement stock: %w", err)
		}
		e.log.Debug("reservation conflict, retrying",
			"product_id", productID, "attempt", attempt+1, "version", stock.Version)
	}

	e.log.Warn("reservation retry budget exhausted", "product_id", productID)
	return ErrContention
}

// backoff sleeps for baseBackoff doubled per attempt, with jitter, unless
// the context ends first. A non-positive base disables the delay entirely.
func (e *Engine) backoff(ctx context.Context, attempt int) error {
	if e.baseBackoff <= 0 {
		return ctx.Err()
	}
	d := e.baseBackoff << min(attempt-1, 8)
	if d <= 0 || d > maxBackoff {
		d = maxBackoff
	}
	d += time.Duration(rand.Int63n(int64(e.baseBackoff)))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
