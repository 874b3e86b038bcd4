package application

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/orderflow/orderflow/internal/product/domain"
)

type Service struct {
	repo ProductRepository
}

func NewService(repo ProductRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Register(ctx context.Context, name string, quantity int64) (domain.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Product{}, domain.ErrInvalidName
	}
	if quantity < 0 {
		return domain.Product{}, domain.ErrInvalidQuantity
	}

	p := domain.NewProduct(uuid.NewString(), name, quantity)
	if err := s.repo.Create(ctx, p); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]domain.Product, error) {
	return s.repo.List(ctx)
}
