package storage

import (
	"context"
	"embed"

	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/access"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/invitation"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/onboarding"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/stage"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/user"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is implemented by every persistence backend.
type Store interface {
	Close(ctx context.Context) error
	Migrate(ctx context.Context) error
	Users() user.Repository
	Invitations() invitation.Repository
	Deliveries() invitation.DeliveryRepository
	Creators() access.Repository
	Onboarding() onboarding.Repository
	Triage() stage.Repository
}
