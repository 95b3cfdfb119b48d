package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
)

// Migrate applies every *.sql file in fsys that has not been applied yet,
// in lexical filename order. Each file runs in its own transaction and is
// recorded in the migrations table so it runs at most once.
// It returns the names of the files applied by this call.
func (s *Store) Migrate(ctx context.Context, fsys fs.FS) ([]string, error) {
	if _, err := s.db.ExecContext(ctx, s.dialect.migrationsTable()); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	done, err := s.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migration files: %w", err)
	}
	sort.Strings(files)

	applied := []string{}
	for _, name := range files {
		if done[name] {
			slog.Debug("migration already applied", "name", name)
			continue
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", name, err)
		}
		err = s.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO migrations (name, executed_at) VALUES (?, ?)",
				name, s.stamps.next()); err != nil {
				return fmt.Errorf("record migration %s: %w", name, err)
			}
			return nil
		})
		if err != nil {
			return applied, err
		}
		slog.Info("migration applied", "name", name)
		applied = append(applied, name)
	}
	return applied, nil
}

func (s *Store) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("read migrations: %w", err)
		}
		done[name] = true
	}
	return done, rows.Err()
}
