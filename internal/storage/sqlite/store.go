// Package sqlite is the single-file storage backend, used for local runs
// and for tests that need real SQL semantics without a server.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/access"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/invitation"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/onboarding"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/stage"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/storage"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/user"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	db          *sql.DB
	users       *userRepo
	invitations *invitationRepo
	creators    *creatorRepo
	onboarding  *onboardingRepo
	triage      *triageRepo
}

var _ storage.Store = (*Store)(nil)

// Open opens or creates the database file. A single connection is kept so
// every transaction is serialized, which is what makes the onboarding
// read-modify-write atomic here.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	return &Store{
		db:          db,
		users:       &userRepo{db: db},
		invitations: &invitationRepo{db: db},
		creators:    &creatorRepo{db: db},
		onboarding:  &onboardingRepo{db: db},
		triage:      &triageRepo{db: db},
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	_ = ctx
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	return storage.NewMigratorFor(s.db, migrationsFS, storage.SQLite).Up(ctx)
}

func (s *Store) Users() user.Repository { return s.users }
func (s *Store) Invitations() invitation.Repository { return s.invitations }
func (s *Store) Deliveries() invitation.DeliveryRepository { return s.invitations }
func (s *Store) Creators() access.Repository { return s.creators }
func (s *Store) Onboarding() onboarding.Repository { return s.onboarding }
func (s *Store) Triage() stage.Repository { return s.triage }

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func millisArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMillis(*t)
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
