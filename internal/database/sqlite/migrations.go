package sqlite

import (
	"context"
	"embed"
	"io/fs"

	"github.com/kozaktomas/face-attendance/internal/database/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	_, err = migrate.Apply(ctx, s.db, files, migrate.SQLite)
	return err
}

// MigrationsApplied returns the applied migration versions in order.
func (s *Store) MigrationsApplied(ctx context.Context) ([]string, error) {
	return migrate.Applied(ctx, s.db)
}
