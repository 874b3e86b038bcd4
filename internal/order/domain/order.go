package domain

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("order not found")

type Status string

const (
	StatusCommitted Status = "committed"
	StatusRejected  Status = "rejected"
)

// Order is one journal entry. Records are immutable once written:
// corrections are new compensating orders, never edits.
type Order struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ProductID      string    `json:"product_id"`
	Quantity       int64     `json:"quantity"`
	Status         Status    `json:"status"`
	IdempotencyKey string    `json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewCommitted(id, userID, productID string, quantity int64, idempotencyKey string) Order {
	return newOrder(id, userID, productID, quantity, StatusCommitted, idempotencyKey)
}

func NewRejected(id, userID, productID string, quantity int64, idempotencyKey string) Order {
	return newOrder(id, userID, productID, quantity, StatusRejected, idempotencyKey)
}

func newOrder(id, userID, productID string, quantity int64, status Status, idempotencyKey string) Order {
	return Order{
		ID:             id,
		UserID:         userID,
		ProductID:      productID,
		Quantity:       quantity,
		Status:         status,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
}

func (o Order) Committed() bool { return o.Status == StatusCommitted }
