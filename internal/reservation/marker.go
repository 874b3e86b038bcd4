package reservation

import (
	"context"
	"errors"
	"time"
)

type MarkerState string

const (
	// MarkerPending: written before the engine runs. A pending marker
	// proves nothing about stock; the decrement transaction either never
	// started or never committed.
	MarkerPending MarkerState = "pending"

	// MarkerReserved: flipped inside the same transaction as the stock
	// decrement. A reserved marker without a journal entry is the crash
	// window the reconciler closes.
	MarkerReserved MarkerState = "reserved"
)

// Marker is the pending-reservation record that brackets the dual write
// (stock decrement, journal append). It carries everything needed to
// complete the journal entry after a crash, including the order ID chosen
// up front.
type Marker struct {
	IdempotencyKey string
	OrderID        string
	UserID         string
	ProductID      string
	Quantity       int64
	State          MarkerState
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ErrMarkerExists: a marker for this idempotency key is already present,
// meaning an equivalent request is in flight.
var ErrMarkerExists = errors.New("reservation marker exists")

type MarkerStore interface {
	// Create writes a pending marker, or ErrMarkerExists if the key is
	// already claimed.
	Create(ctx context.Context, m Marker) error

	// Delete removes the marker once the journal entry is durable.
	Delete(ctx context.Context, idempotencyKey string) error

	// DeletePending removes the marker only while it is still pending.
	// Failure paths use this: a reserved marker must survive until its
	// journal entry exists.
	DeletePending(ctx context.Context, idempotencyKey string) error

	// ListStale returns markers not updated since the cutoff, for the
	// reconciler. Fresh markers belong to requests still in flight.
	ListStale(ctx context.Context, cutoff time.Time) ([]Marker, error)
}
