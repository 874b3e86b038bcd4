package domain

import (
	"errors"
	"time"
)

// Product carries the stock columns the reservation core depends on:
// quantity never goes negative, version increments on every decrement.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Quantity  int64     `json:"quantity"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrNotFound        = errors.New("product not found")
	ErrNameTaken       = errors.New("product with this name already exists")
	ErrInvalidName     = errors.New("product name required")
	ErrInvalidQuantity = errors.New("initial quantity must not be negative")
)

func NewProduct(id, name string, quantity int64) Product {
	return Product{
		ID:        id,
		Name:      name,
		Quantity:  quantity,
		CreatedAt: time.Now().UTC(),
	}
}
