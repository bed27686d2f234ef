// Package db owns the PostgreSQL schema.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one versioned schema file.
type Migration struct {
	Version string
	SQL     string
}

// Migrations returns the embedded migrations in version order.
func Migrations() ([]Migration, error) {
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	out := make([]Migration, 0, len(names))
	for _, name := range names {
		raw, err := migrationFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		version := strings.TrimSuffix(strings.TrimPrefix(name, "migrations/"), ".sql")
		out = append(out, Migration{Version: version, SQL: string(raw)})
	}
	return out, nil
}

// Migrate applies pending migrations, each in its own transaction, and
// returns the versions it applied.
func Migrate(ctx context.Context, conn *sql.DB) ([]string, error) {
	if _, err := conn.ExecContext(ctx, `create table if not exists schema_migrations (
    version text primary key,
    applied_at timestamptz not null default now()
)`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, m := range migrations {
		var exists bool
		if err := conn.QueryRowContext(ctx, `select exists (select 1 from schema_migrations where version = $1)`, m.Version).Scan(&exists); err != nil {
			return applied, fmt.Errorf("check %s: %w", m.Version, err)
		}
		if exists {
			continue
		}
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return applied, err
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("apply %s: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `insert into schema_migrations (version) values ($1)`, m.Version); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("record %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("commit %s: %w", m.Version, err)
		}
		applied = append(applied, m.Version)
	}
	return applied, nil
}
