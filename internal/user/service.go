package user

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo  Repository
	idGen func() ID
	now   func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		idGen: func() ID {
			return ID(uuid.NewString())
		},
		now: time.Now,
	}
}

// Create registers an account without a credential. Enrollment calls this
// before issuing the invitation that lets the creator pick a password.
func (s *Service) Create(ctx context.Context, email string) (User, error) {
	if s.repo == nil {
		return User{}, errors.New("repository is required")
	}
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:        s.idGen(),
		Email:     normalized,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Ensure returns the account for email, creating it when absent.
func (s *Service) Ensure(ctx context.Context, email string) (User, error) {
	found, err := s.GetByEmail(ctx, email)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}
	return s.Create(ctx, email)
}

func (s *Service) GetByID(ctx context.Context, id ID) (User, error) {
	if s.repo == nil {
		return User{}, errors.New("repository is required")
	}
	if strings.TrimSpace(string(id)) == "" {
		return User{}, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	if s.repo == nil {
		return User{}, errors.New("repository is required")
	}
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	return s.repo.GetByEmail(ctx, normalized)
}

func (s *Service) SetPasswordHash(ctx context.Context, id ID, passwordHash string) error {
	if s.repo == nil {
		return errors.New("repository is required")
	}
	if strings.TrimSpace(string(id)) == "" || strings.TrimSpace(passwordHash) == "" {
		return ErrInvalidInput
	}
	return s.repo.SetPasswordHash(ctx, id, passwordHash)
}

// NormalizeEmail lower-cases and validates an address.
func NormalizeEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return "", ErrInvalidInput
	}
	parsed, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", ErrInvalidInput
	}
	return strings.ToLower(parsed.Address), nil
}
