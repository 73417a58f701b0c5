package db

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/banshee-data/pose.overlay/internal/monitoring"
)

// SchemaStatus is where the database schema stands relative to a set of
// migrations.
type SchemaStatus struct {
	Version uint
	Latest  uint
	Dirty   bool
}

// Pending reports whether migrations remain to be applied.
func (s SchemaStatus) Pending() bool { return s.Version < s.Latest }

func (s SchemaStatus) String() string {
	out := fmt.Sprintf("schema version %d", s.Version)
	if s.Pending() {
		out += fmt.Sprintf(" (latest %d)", s.Latest)
	}
	if s.Dirty {
		out += " (dirty)"
	}
	return out
}

// Migrator applies one set of migrations to a DB. It shares the DB's
// connection pool and is never closed on its own: closing the underlying
// migrate instance would close the *sql.DB.
type Migrator struct {
	m      *migrate.Migrate
	latest uint
}

// Migrator prepares migrations (usually MigrationsFS()) against db.
func (db *DB) Migrator(migrations fs.FS) (*Migrator, error) {
	src, err := iofs.New(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("open migrations source: %w", err)
	}
	latest, err := latestVersion(src)
	if err != nil {
		return nil, err
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return &Migrator{m: m, latest: latest}, nil
}

func latestVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read first migration: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read migration after %d: %w", v, err)
		}
		v = next
	}
}

// Up applies every pending migration. Already being current is not an error.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (mg *Migrator) Down() error {
	if err := mg.m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Force records version as applied without running anything. It is the
// way out of a dirty state.
func (mg *Migrator) Force(version int) error {
	if err := mg.m.Force(version); err != nil {
		return fmt.Errorf("force migration to version %d failed: %w", version, err)
	}
	return nil
}

// Status reports the applied version. A database that has never been
// migrated is at version 0.
func (mg *Migrator) Status() (SchemaStatus, error) {
	st := SchemaStatus{Latest: mg.latest}
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	st.Version, st.Dirty = v, dirty
	return st, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }
