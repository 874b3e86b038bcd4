package reservation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/order/domain"
	"github.com/orderflow/orderflow/internal/reservation"
	"github.com/orderflow/orderflow/internal/reservation/memory"
)

func newCoordinator(store *memory.Store) *reservation.Coordinator {
	engine := reservation.NewEngine(testLogger(), store,
		reservation.WithMaxAttempts(60),
		reservation.WithBaseBackoff(100*time.Microsecond))
	return reservation.NewCoordinator(testLogger(), engine, store, store, store, nil)
}

func seed(store *memory.Store, productQty int64) {
	store.SeedUser("u1")
	store.SeedProduct("p1", productQty)
}

func TestPlaceOrder_Commit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(store, 5)
	coord := newCoordinator(store)

	rec, err := coord.PlaceOrder(ctx, "u1", "p1", 5, "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCommitted, rec.Status)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, "p1", rec.ProductID)
	assert.Equal(t, int64(5), rec.Quantity)
	assert.Equal(t, "key-1", rec.IdempotencyKey)
	assert.Equal(t, int64(0), store.Quantity("p1"))

	// the marker must not outlive the journal entry
	_, ok := store.Marker("key-1")
	assert.False(t, ok)
}

func TestPlaceOrder_Idempotent(t *testing.T) {
	// stock=5, quantity=5 with key K: the first call commits and drains
	// stock; the retry returns the identical record with no further effect.
	ctx := context.Background()
	store := memory.NewStore()
	seed(store, 5)
	coord := newCoordinator(store)

	first, err := coord.PlaceOrder(ctx, "u1", "p1", 5, "K")
	require.NoError(t, err)
	require.Equal(t, int64(0), store.Quantity("p1"))

	second, err := coord.PlaceOrder(ctx, "u1", "p1", 5, "K")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(0), store.Quantity("p1"))

	orders, err := store.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestPlaceOrder_RejectionJournaled(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(store, 10)
	coord := newCoordinator(store)

	rec, err := coord.PlaceOrder(ctx, "u1", "p1", 12, "key-1")
	require.ErrorIs(t, err, reservation.ErrInsufficientStock)
	assert.Equal(t, domain.StatusRejected, rec.Status)
	assert.Equal(t, int64(10), store.Quantity("p1"), "rejection must not change stock")

	// replaying the rejection returns the same journal entry and error
	replay, err := coord.PlaceOrder(ctx, "u1", "p1", 12, "key-1")
	require.ErrorIs(t, err, reservation.ErrInsufficientStock)
	assert.Equal(t, rec, replay)

	orders, err := store.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestPlaceOrder_UnknownProduct(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.SeedUser("u1")
	coord := newCoordinator(store)

	_, err := coord.PlaceOrder(ctx, "u1", "ghost", 1, "key-1")
	require.ErrorIs(t, err, reservation.ErrProductNotFound)

	orders, err := store.ListOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders, "no journal entry for unknown product")
	_, ok := store.Marker("key-1")
	assert.False(t, ok)
}

func TestPlaceOrder_UnknownUser(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.SeedProduct("p1", 10)
	coord := newCoordinator(store)

	_, err := coord.PlaceOrder(ctx, "ghost", "p1", 1, "key-1")
	require.ErrorIs(t, err, reservation.ErrUserNotFound)
	assert.Equal(t, int64(10), store.Quantity("p1"))
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(store, 10)
	coord := newCoordinator(store)

	_, err := coord.PlaceOrder(ctx, "u1", "p1", 0, "key-1")
	require.ErrorIs(t, err, reservation.ErrInvalidQuantity)

	_, err = coord.PlaceOrder(ctx, "u1", "p1", -3, "key-2")
	require.ErrorIs(t, err, reservation.ErrInvalidQuantity)
}

func TestPlaceOrder_MissingKey(t *testing.T) {
	store := memory.NewStore()
	seed(store, 10)
	coord := newCoordinator(store)

	_, err := coord.PlaceOrder(context.Background(), "u1", "p1", 1, "")
	require.Error(t, err)
}

func TestPlaceOrder_Conservation(t *testing.T) {
	// 100 concurrent unit orders against stock=50: exactly 50 committed
	// journal entries, 50 rejected, and the conservation identity holds.
	ctx := context.Background()
	store := memory.NewStore()
	const initial = 50
	seed(store, initial)
	coord := newCoordinator(store)

	const callers = 100
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := coord.PlaceOrder(ctx, "u1", "p1", 1, fmt.Sprintf("key-%d", i))
			if err != nil && !errors.Is(err, reservation.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	orders, err := store.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, callers)

	var committedQty int64
	var committed, rejected int
	for _, o := range orders {
		if o.Committed() {
			committed++
			committedQty += o.Quantity
		} else {
			rejected++
		}
	}
	assert.Equal(t, 50, committed)
	assert.Equal(t, 50, rejected)
	assert.Equal(t, int64(initial)-committedQty, store.Quantity("p1"),
		"initial - sum(committed) must equal quantity on hand")
	assert.Equal(t, int64(0), store.Quantity("p1"))
}

// flakyJournal fails appends on demand, leaving the underlying store's
// ledger and markers intact.
type flakyJournal struct {
	*memory.Store
	mu   sync.Mutex
	fail bool
}

func (j *flakyJournal) setFail(fail bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fail = fail
}

func (j *flakyJournal) Append(ctx context.Context, order domain.Order) (domain.Order, error) {
	j.mu.Lock()
	fail := j.fail
	j.mu.Unlock()
	if fail {
		return domain.Order{}, errors.New("journal unavailable")
	}
	return j.Store.Append(ctx, order)
}

func TestPlaceOrder_JournalFailureAfterDecrement(t *testing.T) {
	// The decrement commits but the journal append fails. The caller must
	// see ErrDurability, the reserved marker must survive so the
	// reconciler can complete the entry, and a same-key retry must not
	// decrement a second time.
	ctx := context.Background()
	store := memory.NewStore()
	seed(store, 10)
	journal := &flakyJournal{Store: store, fail: true}

	engine := reservation.NewEngine(testLogger(), store,
		reservation.WithMaxAttempts(60),
		reservation.WithBaseBackoff(100*time.Microsecond))
	coord := reservation.NewCoordinator(testLogger(), engine, journal, store, store, nil)

	_, err := coord.PlaceOrder(ctx, "u1", "p1", 4, "K")
	require.ErrorIs(t, err, reservation.ErrDurability)
	assert.Equal(t, int64(6), store.Quantity("p1"), "the decrement is durable")

	m, ok := store.Marker("K")
	require.True(t, ok, "the marker must survive for the reconciler")
	assert.Equal(t, reservation.MarkerReserved, m.State)

	// Same-key retry while the entry is incomplete: no second decrement.
	_, err = coord.PlaceOrder(ctx, "u1", "p1", 4, "K")
	require.ErrorIs(t, err, reservation.ErrRequestInFlight)
	assert.Equal(t, int64(6), store.Quantity("p1"))

	// Journal recovers; the sweep completes the entry from the marker.
	journal.setFail(false)
	store.TouchMarker("K", time.Now().Add(-time.Hour))
	rec := reservation.NewReconciler(testLogger(), journal, store)
	require.NoError(t, rec.SweepOnce(ctx))

	entry, found, err := store.LookupByKey(ctx, "K")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.StatusCommitted, entry.Status)
	assert.Equal(t, int64(4), entry.Quantity)
	assert.Equal(t, int64(6), store.Quantity("p1"), "completion never touches stock")
	_, ok = store.Marker("K")
	assert.False(t, ok)
}

func TestPlaceOrder_ConcurrentSameKey(t *testing.T) {
	// Two racing calls with one key: stock moves once, the journal gets
	// one entry, and each caller sees either that record or an explicit
	// in-flight signal it can retry on.
	ctx := context.Background()
	store := memory.NewStore()
	seed(store, 10)
	coord := newCoordinator(store)

	type result struct {
		rec domain.Order
		err error
	}
	results := make([]result, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := coord.PlaceOrder(ctx, "u1", "p1", 4, "K")
			results[i] = result{rec, err}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(6), store.Quantity("p1"), "stock must move exactly once")
	orders, err := store.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	for _, r := range results {
		if r.err == nil {
			assert.Equal(t, orders[0], r.rec)
		} else {
			assert.ErrorIs(t, r.err, reservation.ErrRequestInFlight)
		}
	}
}
