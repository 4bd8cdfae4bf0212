package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite3/*.sql
var migrationsFS embed.FS

type migration struct {
	Name    string
	Content string
}

// Migrate applies every pending migration for the connected dialect in
// filename order. Each migration runs in its own transaction together with
// its tracking row.
func (db *DB) Migrate(ctx context.Context, logger *zap.Logger) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("getting applied migrations: %w", err)
	}

	migrations, err := migrationFiles(db.DriverName())
	if err != nil {
		return fmt.Errorf("reading migration files: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Name] {
			continue
		}
		logger.Info("applying migration", zap.String("name", m.Name), zap.String("driver", db.DriverName()))
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration %s: %w", m.Name, err)
		}
	}
	return nil
}

func (db *DB) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	var names []string
	if err := db.SelectContext(ctx, &names, "SELECT name FROM schema_migrations"); err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(names))
	for _, n := range names {
		applied[n] = true
	}
	return applied, nil
}

func (db *DB) applyMigration(ctx context.Context, m migration) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.Content); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)"), m.Name, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func migrationFiles(driver string) ([]migration, error) {
	dir := path.Join("migrations", driver)
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, err
	}

	var migrations []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		content, err := migrationsFS.ReadFile(path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		migrations = append(migrations, migration{Name: e.Name(), Content: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Name < migrations[j].Name
	})
	return migrations, nil
}
