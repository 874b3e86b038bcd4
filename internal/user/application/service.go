package application

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/orderflow/orderflow/internal/user/domain"
)

var ErrInvalidEmail = errors.New("invalid email")

type Service struct {
	repo UserRepository
}

func NewService(repo UserRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Register(ctx context.Context, name, email string) (domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" || !strings.Contains(email, "@") {
		return domain.User{}, ErrInvalidEmail
	}

	u := domain.NewUser(uuid.NewString(), name, email)
	if err := s.repo.Create(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]domain.User, error) {
	return s.repo.List(ctx)
}
