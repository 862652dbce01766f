// README: Postgres connection pool initialization and schema migration.
package infra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLock serializes migrators started at the same time, e.g. test
// packages running in parallel against one database.
const migrationLock = 0x706c6f77

func NewDB(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// Migrate applies the *.sql files in dir that schema_migrations does not list
// yet, each in its own transaction, in lexical order.
func Migrate(ctx context.Context, db *pgxpool.Pool, dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLock); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT name FROM schema_migrations`)
		if err != nil {
			return err
		}
		names, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}
		for _, path := range pending(files, names) {
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			// No arguments: pgx sends the file over the simple protocol, which
			// accepts several statements at once.
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, filepath.Base(path)); err != nil {
				return err
			}
		}
		return nil
	})
}

// pending returns the files whose base name is not in applied, sorted.
func pending(files, applied []string) []string {
	done := make(map[string]bool, len(applied))
	for _, name := range applied {
		done[name] = true
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		if !done[filepath.Base(f)] {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// MigrationsDir walks up from the working directory to the module root and
// returns its migrations directory.
func MigrationsDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "migrations"), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}
