package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/access"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/invitation"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/onboarding"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/stage"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/user"
)

type PostgresStore struct {
	db          *sql.DB
	users       *userRepo
	invitations *invitationRepo
	creators    *creatorRepo
	onboarding  *onboardingRepo
	triage      *triageRepo
}

func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("db url is required")
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return newPostgresStore(db), nil
}

func newPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:          db,
		users:       &userRepo{db: db},
		invitations: &invitationRepo{db: db},
		creators:    &creatorRepo{db: db},
		onboarding:  &onboardingRepo{db: db},
		triage:      &triageRepo{db: db},
	}
}

func (s *PostgresStore) Close(ctx context.Context) error {
	_ = ctx
	return s.db.Close()
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	migrator := NewMigrator(s.db, migrationsFS)
	return migrator.Up(ctx)
}

func (s *PostgresStore) Users() user.Repository { return s.users }
func (s *PostgresStore) Invitations() invitation.Repository { return s.invitations }
func (s *PostgresStore) Deliveries() invitation.DeliveryRepository { return s.invitations }
func (s *PostgresStore) Creators() access.Repository { return s.creators }
func (s *PostgresStore) Onboarding() onboarding.Repository { return s.onboarding }
func (s *PostgresStore) Triage() stage.Repository { return s.triage }
