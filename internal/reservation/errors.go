package reservation

import "errors"

var (
	// ErrProductNotFound: the product has no stock record. Caller error,
	// not retryable.
	ErrProductNotFound = errors.New("product not found")

	// ErrUserNotFound: the ordering user does not exist. Caller error,
	// not retryable.
	ErrUserNotFound = errors.New("user not found")

	// ErrInsufficientStock: a business rejection, not a system fault. The
	// request is journaled as rejected and stock is untouched.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrVersionConflict: a concurrent reservation won the conditional
	// write. Internal to the engine, which retries; never surfaced.
	ErrVersionConflict = errors.New("stock version conflict")

	// ErrContention: the engine exhausted its retry budget. Safe for the
	// caller to retry with the same idempotency key.
	ErrContention = errors.New("reservation contention, retry")

	// ErrRequestInFlight: another request holding the same idempotency key
	// is currently being processed. Retry shortly with the same key.
	ErrRequestInFlight = errors.New("request with this idempotency key in flight")

	// ErrInvalidQuantity: quantity must be a positive integer.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrDurability: the journal append could not persist after stock was
	// decremented. The reconciler completes the entry from its marker.
	ErrDurability = errors.New("journal append failed")
)
