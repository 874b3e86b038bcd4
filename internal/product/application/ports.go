package application

import (
	"context"

	"github.com/orderflow/orderflow/internal/product/domain"
)

type ProductRepository interface {
	// Create persists a new product; ErrNameTaken if the name is in use.
	Create(ctx context.Context, p domain.Product) error
	GetByID(ctx context.Context, id string) (domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
}
