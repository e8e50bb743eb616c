package database

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// MigrationsTable is where golang-migrate records the applied version.
const MigrationsTable = "projections_schema_migrations"

// RunMigrations applies pending migrations from migrationsFS (normally
// migrations.FS). Running it against an up-to-date database is a no-op.
// A database left dirty by a failed migration is reported, not repaired.
func RunMigrations(db *sql.DB, migrationsFS fs.FS, logger *zap.Logger) error {
	source, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("failed to open migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Warn("Failed to close migration database", zap.Error(dbErr))
		}
	}()

	before, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		before = 0
	case err != nil:
		return fmt.Errorf("failed to read migration version: %w", err)
	case dirty:
		return fmt.Errorf("database is dirty at migration version %d; fix it by hand and force the version", before)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("Database schema up to date", zap.Uint("version", before))
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	after, _, _ := m.Version()
	logger.Info("Applied migrations",
		zap.Uint("from_version", before),
		zap.Uint("to_version", after))
	return nil
}
