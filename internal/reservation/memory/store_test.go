package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/order/domain"
	"github.com/orderflow/orderflow/internal/reservation"
)

func TestDecrement(t *testing.T) {
	ctx := context.Background()

	t.Run("stale version loses", func(t *testing.T) {
		s := NewStore()
		s.SeedProduct("p1", 10)

		require.NoError(t, s.Decrement(ctx, "p1", 1, 0, "k1"))
		err := s.Decrement(ctx, "p1", 1, 0, "k2")
		require.ErrorIs(t, err, reservation.ErrVersionConflict)
	})

	t.Run("unknown product", func(t *testing.T) {
		s := NewStore()
		err := s.Decrement(ctx, "ghost", 1, 0, "k")
		require.ErrorIs(t, err, reservation.ErrProductNotFound)
	})

	t.Run("flips pending marker to reserved", func(t *testing.T) {
		s := NewStore()
		s.SeedProduct("p1", 10)
		require.NoError(t, s.Create(ctx, reservation.Marker{
			IdempotencyKey: "k",
			OrderID:        "o1",
			UserID:         "u1",
			ProductID:      "p1",
			Quantity:       2,
			State:          reservation.MarkerPending,
		}))

		require.NoError(t, s.Decrement(ctx, "p1", 2, 0, "k"))
		m, ok := s.Marker("k")
		require.True(t, ok)
		assert.Equal(t, reservation.MarkerReserved, m.State)
	})
}

func TestAppendIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	first, err := s.Append(ctx, domain.NewCommitted("o1", "u1", "p1", 2, "K"))
	require.NoError(t, err)

	again, err := s.Append(ctx, domain.NewCommitted("o2", "u1", "p1", 2, "K"))
	require.NoError(t, err)
	assert.Equal(t, first, again, "conflicting append returns the existing record")

	orders, err := s.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestMarkers(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	m := reservation.Marker{
		IdempotencyKey: "k",
		OrderID:        "o1",
		UserID:         "u1",
		ProductID:      "p1",
		Quantity:       1,
		State:          reservation.MarkerPending,
	}

	require.NoError(t, s.Create(ctx, m))
	require.ErrorIs(t, s.Create(ctx, m), reservation.ErrMarkerExists)

	stale, err := s.ListStale(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stale)

	s.TouchMarker("k", time.Now().Add(-time.Hour))
	stale, err = s.ListStale(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "k", stale[0].IdempotencyKey)

	// DeletePending must not remove a reserved marker
	s.SeedProduct("p1", 5)
	require.NoError(t, s.Decrement(ctx, "p1", 1, 0, "k"))
	require.NoError(t, s.DeletePending(ctx, "k"))
	_, ok := s.Marker("k")
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok = s.Marker("k")
	assert.False(t, ok)
}
