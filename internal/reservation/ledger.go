package reservation

import "context"

// ProductStock is the authoritative on-hand quantity for one product.
// Version increments on every successful decrement and guards the
// optimistic conditional write.
type ProductStock struct {
	ProductID string
	Quantity  int64
	Version   int64
}

// StockLedger owns quantity_on_hand and the invariant that it never goes
// negative.
type StockLedger interface {
	// Get returns the current stock snapshot for a product, or
	// ErrProductNotFound.
	Get(ctx context.Context, productID string) (ProductStock, error)

	// Decrement atomically subtracts quantity if the record still carries
	// the given version, and increments the version. In the same write it
	// flips the reservation marker for reservationKey to reserved, so a
	// crash can never leave a durable decrement without a reserved marker.
	// Returns ErrVersionConflict when the version moved, which also covers
	// the record having been consumed by a concurrent reservation.
	Decrement(ctx context.Context, productID string, quantity, version int64, reservationKey string) error
}
