package invitation

import (
	"context"
	"errors"
	"time"

	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/user"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("invitation not found")
	ErrExpired      = errors.New("invitation expired")
	ErrAlreadyUsed  = errors.New("invitation already used")
	ErrWeakSecret   = errors.New("secret does not meet the minimum length")
	ErrConflict     = errors.New("invitation consumed concurrently")
)

// MinSecretLength is counted in characters, not bytes.
const MinSecretLength = 8

// Token is a stored one-time invitation. The raw token string is never
// persisted; TokenHash is its SHA-256.
type Token struct {
	ID            string
	TokenHash     []byte
	UserID        user.ID
	ApplicationID *string
	ExpiresAt     time.Time
	UsedAt        *time.Time
	CreatedAt     time.Time
}

// Usable reports why the token cannot be redeemed at now, or nil.
func (t Token) Usable(now time.Time) error {
	if !now.Before(t.ExpiresAt) {
		return ErrExpired
	}
	if t.UsedAt != nil {
		return ErrAlreadyUsed
	}
	return nil
}

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

func ParseDeliveryStatus(v string) (DeliveryStatus, error) {
	switch s := DeliveryStatus(v); s {
	case DeliveryPending, DeliverySent, DeliveryFailed:
		return s, nil
	default:
		return "", ErrInvalidInput
	}
}

// Delivery tracks the email that carried a token. The click and use stamps
// are only ever set once.
type Delivery struct {
	TokenID       string
	UserID        user.ID
	Status        DeliveryStatus
	SentAt        *time.Time
	LinkClickedAt *time.Time
	LinkUsedAt    *time.Time
}

type Repository interface {
	Create(ctx context.Context, tok Token) error
	GetByHash(ctx context.Context, hash []byte) (Token, error)
	GetByID(ctx context.Context, id string) (Token, error)
	// MarkUsed stamps UsedAt only if it is still unset. It returns
	// ErrConflict when no row was updated.
	MarkUsed(ctx context.Context, id string, at time.Time) error
}

type DeliveryRepository interface {
	CreateDelivery(ctx context.Context, d Delivery) error
	GetDelivery(ctx context.Context, tokenID string) (Delivery, error)
	SetDeliveryStatus(ctx context.Context, tokenID string, status DeliveryStatus, at time.Time) error
	MarkLinkClicked(ctx context.Context, tokenID string, at time.Time) error
	// MarkLinkUsed also fills LinkClickedAt when it is still empty.
	MarkLinkUsed(ctx context.Context, tokenID string, at time.Time) error
}

// UserDirectory is the slice of the user service the lifecycle needs.
type UserDirectory interface {
	GetByID(ctx context.Context, id user.ID) (user.User, error)
	Ensure(ctx context.Context, email string) (user.User, error)
}

// Credentials stores the secret a creator picks during setup.
type Credentials interface {
	SetCredential(ctx context.Context, id user.ID, secret string) error
}
