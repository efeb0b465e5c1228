package user

import (
	"context"
	"errors"
	"time"
)

type ID string

// User is a creator account. PasswordHash stays empty until invitation
// setup stores the first credential.
type User struct {
	ID           ID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("user not found")
)

type Repository interface {
	Create(ctx context.Context, user User) error
	GetByID(ctx context.Context, id ID) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	SetPasswordHash(ctx context.Context, id ID, passwordHash string) error
}
