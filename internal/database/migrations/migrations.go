package migrations

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/uptrace/bun"

	"ms-raffle/internal/logger"
)

// Options configures the migration runner.
type Options struct {
	// MigrationsDir holds the versioned SQL files.
	MigrationsDir string
	// SeedData runs seed migrations after the schema ones.
	SeedData bool
}

func DefaultOptions() Options {
	return Options{
		MigrationsDir: "./migrations",
		SeedData:      false,
	}
}

// Runner applies the versioned schema to the ticket ledger database.
type Runner struct {
	bunDB    *bun.DB
	options  Options
	logger   *logger.Logger
	migrator *migrate.Migrate
}

func NewRunner(bunDB *bun.DB, opts Options, log *logger.Logger) *Runner {
	return &Runner{
		bunDB:   bunDB,
		options: opts,
		logger:  log,
	}
}

func (r *Runner) initialize() error {
	if r.migrator != nil {
		return nil
	}

	driver, err := postgres.WithInstance(r.bunDB.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	if _, err := os.Stat(r.options.MigrationsDir); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory does not exist: %s", r.options.MigrationsDir)
	}

	migrator, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", r.options.MigrationsDir),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	r.migrator = migrator
	return nil
}

// Run applies pending migrations. Without SeedData only the schema migration
// (version 1) is applied; seed migrations are the versions above it.
func (r *Runner) Run() error {
	if err := r.initialize(); err != nil {
		return err
	}

	version, dirty, err := r.migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		r.logger.Warn("DATABASE", "Detected dirty migration, forcing current version")
		if err := r.migrator.Force(int(version)); err != nil {
			return fmt.Errorf("failed to fix dirty migration: %w", err)
		}
	}

	if r.options.SeedData {
		r.logger.Info("DATABASE", "Running all migrations including seed data")
		if err := r.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	} else {
		r.logger.Info("DATABASE", "Running schema migration only")
		if err := r.migrator.Migrate(1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to run schema migration: %w", err)
		}
	}

	if version, _, err := r.migrator.Version(); err == nil {
		r.logger.Info("DATABASE", fmt.Sprintf("Current schema version: %d", version))
	}
	return nil
}

// Down rolls back all migrations.
func (r *Runner) Down() error {
	if err := r.initialize(); err != nil {
		return err
	}
	if err := r.migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Close frees the migrator's source and database handles.
func (r *Runner) Close() error {
	if r.migrator == nil {
		return nil
	}
	sourceErr, databaseErr := r.migrator.Close()
	if sourceErr != nil {
		return fmt.Errorf("error closing migrator source: %w", sourceErr)
	}
	if databaseErr != nil {
		return fmt.Errorf("error closing migrator database: %w", databaseErr)
	}
	return nil
}
