package application

import (
	"context"

	"github.com/orderflow/orderflow/internal/user/domain"
)

type UserRepository interface {
	// Create persists a new user; ErrEmailTaken if the email is in use.
	Create(ctx context.Context, u domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
}
