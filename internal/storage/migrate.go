package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SchemaChange reports the schema version before and after RunMigrations.
// Version 0 means no migration had been applied.
type SchemaChange struct {
	From, To uint
}

func (c SchemaChange) Applied() bool { return c.From != c.To }

// ErrDirtySchema is returned when an earlier migration failed halfway.
// The database has to be repaired and its version forced by hand.
var ErrDirtySchema = errors.New("schema is dirty")

// RunMigrations brings dbPath up to the latest embedded schema, seed data included.
func RunMigrations(dbPath string) (SchemaChange, error) {
	var change SchemaChange

	// Own connection: closing the migrator closes it too.
	migrateDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return change, fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		return change, fmt.Errorf("create sqlite driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return change, fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return change, fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if change.From, err = schemaVersion(m); err != nil {
		return change, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return change, fmt.Errorf("migrate from version %d: %w", change.From, err)
	}
	if change.To, err = schemaVersion(m); err != nil {
		return change, err
	}
	return change, nil
}

func schemaVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("read schema version: %w", err)
	case dirty:
		return v, fmt.Errorf("version %d: %w", v, ErrDirtySchema)
	}
	return v, nil
}
