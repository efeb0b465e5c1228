package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Dialect covers the few places the migrator's own bookkeeping differs
// between PostgreSQL and SQLite.
type Dialect struct {
	Name string
	// TimestampType is the column type of schema_migrations.applied_at.
	TimestampType string
	// Param renders the n-th (1-based) bind parameter.
	Param func(n int) string
	// Time converts a timestamp into the value stored in the database.
	Time func(t time.Time) any
}

var Postgres = Dialect{
	Name:          "postgres",
	TimestampType: "TIMESTAMPTZ",
	Param:         func(n int) string { return fmt.Sprintf("$%d", n) },
	Time:          func(t time.Time) any { return t },
}

// SQLite stores timestamps as unix milliseconds.
var SQLite = Dialect{
	Name:          "sqlite",
	TimestampType: "INTEGER",
	Param:         func(int) string { return "?" },
	Time:          func(t time.Time) any { return t.UnixMilli() },
}

type Migrator struct {
	db      *sql.DB
	fs      fs.FS
	dialect Dialect
	now     func() time.Time
}

func NewMigrator(db *sql.DB, migrations fs.FS) *Migrator {
	return NewMigratorFor(db, migrations, Postgres)
}

func NewMigratorFor(db *sql.DB, migrations fs.FS, dialect Dialect) *Migrator {
	return &Migrator{db: db, fs: migrations, dialect: dialect, now: time.Now}
}

func (m *Migrator) Up(ctx context.Context) error {
	if m.db == nil {
		return fmt.Errorf("db is required")
	}

	if err := m.ensureTable(ctx); err != nil {
		return err
	}

	files, err := fs.Glob(m.fs, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil
	}

	sort.Strings(files)

	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, file := range files {
		id := filepath.Base(file)
		if applied[id] {
			continue
		}

		content, err := fs.ReadFile(m.fs, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		sqlText := stripLineComments(string(content))
		if strings.TrimSpace(sqlText) == "" {
			if err := m.recordApplied(ctx, m.db, id); err != nil {
				return err
			}
			continue
		}

		if err := m.applyOne(ctx, id, sqlText); err != nil {
			return err
		}
	}

	return nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		id TEXT PRIMARY KEY,
		applied_at `+m.dialect.TimestampType+` NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

func (m *Migrator) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema_migrations: %w", err)
	}
	return applied, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (m *Migrator) applyOne(ctx context.Context, id, sqlText string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, sqlText); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec migration %s: %w", id, err)
	}

	if err := m.recordApplied(ctx, tx, id); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", id, err)
	}
	return nil
}

func (m *Migrator) recordApplied(ctx context.Context, db execer, id string) error {
	query := fmt.Sprintf(`INSERT INTO schema_migrations (id, applied_at) VALUES (%s, %s)`, m.dialect.Param(1), m.dialect.Param(2))
	if _, err := db.ExecContext(ctx, query, id, m.dialect.Time(m.now().UTC())); err != nil {
		return fmt.Errorf("record migration %s: %w", id, err)
	}
	return nil
}

func stripLineComments(sqlText string) string {
	lines := strings.Split(sqlText, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
