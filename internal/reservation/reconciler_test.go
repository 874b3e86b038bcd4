package reservation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/order/domain"
	"github.com/orderflow/orderflow/internal/reservation"
	"github.com/orderflow/orderflow/internal/reservation/memory"
)

func TestReconciler_CompletesCrashWindow(t *testing.T) {
	// A crash after the stock decrement but before the journal append
	// leaves a reserved marker behind. The sweep must complete the journal
	// entry from the marker so conservation still holds.
	ctx := context.Background()
	store := memory.NewStore()
	seed(store, 10)

	require.NoError(t, store.Create(ctx, reservation.Marker{
		IdempotencyKey: "K",
		OrderID:        "order-1",
		UserID:         "u1",
		ProductID:      "p1",
		Quantity:       4,
		State:          reservation.MarkerPending,
	}))
	require.NoError(t, store.Decrement(ctx, "p1", 4, 0, "K"))
	require.Equal(t, int64(6), store.Quantity("p1"))
	// crash: no journal append happened

	store.TouchMarker("K", time.Now().Add(-time.Hour))
	rec := reservation.NewReconciler(testLogger(), store, store)
	require.NoError(t, rec.SweepOnce(ctx))

	entry, found, err := store.LookupByKey(ctx, "K")
	require.NoError(t, err)
	require.True(t, found, "journal entry must be completed from the marker")
	assert.Equal(t, "order-1", entry.ID)
	assert.Equal(t, domain.StatusCommitted, entry.Status)
	assert.Equal(t, int64(4), entry.Quantity)

	_, ok := store.Marker("K")
	assert.False(t, ok)
	assert.Equal(t, int64(6), store.Quantity("p1"), "completion never touches stock")
}

func TestReconciler_DropsAbandonedPending(t *testing.T) {
	// A stale pending marker means the decrement transaction never
	// committed: drop it, journal nothing, leave stock alone.
	ctx := context.Background()
	store := memory.NewStore()
	seed(store, 10)

	require.NoError(t, store.Create(ctx, reservation.Marker{
		IdempotencyKey: "K",
		OrderID:        "order-1",
		UserID:         "u1",
		ProductID:      "p1",
		Quantity:       4,
		State:          reservation.MarkerPending,
	}))
	store.TouchMarker("K", time.Now().Add(-time.Hour))

	rec := reservation.NewReconciler(testLogger(), store, store)
	require.NoError(t, rec.SweepOnce(ctx))

	_, ok := store.Marker("K")
	assert.False(t, ok)
	_, found, err := store.LookupByKey(ctx, "K")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int64(10), store.Quantity("p1"))
}

func TestReconciler_LeavesFreshMarkers(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(store, 10)

	require.NoError(t, store.Create(ctx, reservation.Marker{
		IdempotencyKey: "K",
		OrderID:        "order-1",
		UserID:         "u1",
		ProductID:      "p1",
		Quantity:       4,
		State:          reservation.MarkerPending,
	}))

	rec := reservation.NewReconciler(testLogger(), store, store)
	require.NoError(t, rec.SweepOnce(ctx))

	_, ok := store.Marker("K")
	assert.True(t, ok, "a fresh marker belongs to a request still in flight")
}

func TestReconciler_ReplayAfterLostMarkerDelete(t *testing.T) {
	// If only the marker delete was lost, the journal entry already
	// exists; the idempotent append must not duplicate it.
	ctx := context.Background()
	store := memory.NewStore()
	seed(store, 10)

	require.NoError(t, store.Create(ctx, reservation.Marker{
		IdempotencyKey: "K",
		OrderID:        "order-1",
		UserID:         "u1",
		ProductID:      "p1",
		Quantity:       4,
		State:          reservation.MarkerPending,
	}))
	require.NoError(t, store.Decrement(ctx, "p1", 4, 0, "K"))
	existing, err := store.Append(ctx, domain.NewCommitted("order-1", "u1", "p1", 4, "K"))
	require.NoError(t, err)
	store.TouchMarker("K", time.Now().Add(-time.Hour))

	rec := reservation.NewReconciler(testLogger(), store, store)
	require.NoError(t, rec.SweepOnce(ctx))

	orders, err := store.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, existing, orders[0])
	_, ok := store.Marker("K")
	assert.False(t, ok)
}
