package reservation

import (
	"context"

	"github.com/orderflow/orderflow/internal/order/domain"
)

// Journal is the durable, append-only record of reservation outcomes.
// Append is the durability boundary: once it returns, the record is
// permanent and will be returned identically to any future lookup.
type Journal interface {
	// Append writes the record unless its idempotency key is already
	// present, in which case the existing record is returned unchanged.
	Append(ctx context.Context, order domain.Order) (domain.Order, error)

	// LookupByKey returns the record for an idempotency key, if any.
	LookupByKey(ctx context.Context, idempotencyKey string) (domain.Order, bool, error)
}
