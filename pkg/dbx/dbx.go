// Package dbx opens the Postgres pool and applies the embedded schema
// migrations.
package dbx

import (
	"embed"
	"errors"
	"fmt"

	"github.com/Abraxas-365/keybridge/pkg/config"
	"github.com/Abraxas-365/keybridge/pkg/logx"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Connect opens and pings the pool.
func Connect(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

func newMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// MigrateUp applies every pending migration.
func MigrateUp(databaseURL string) error {
	return run(databaseURL, "up", (*migrate.Migrate).Up)
}

// MigrateDown rolls back steps migrations.
func MigrateDown(databaseURL string, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return run(databaseURL, "down", func(m *migrate.Migrate) error { return m.Steps(-steps) })
}

func run(databaseURL, direction string, fn func(*migrate.Migrate) error) error {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := fn(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logx.Infof("migrate %s: no change", direction)
			return nil
		}
		return fmt.Errorf("migrate %s: %w", direction, err)
	}

	version, dirty, _ := m.Version()
	logx.WithFields(logx.Fields{"version": version, "dirty": dirty}).Infof("migrate %s: done", direction)
	return nil
}
