package storage

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationFS embed.FS

// RunMigrations applies the embedded schema for driver ("mysql" or
// "postgres") against dsn.
func RunMigrations(driver, dsn string, logger *zap.Logger) error {
	src, err := iofs.New(migrationFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("no migrations for driver %q: %w", driver, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrationURL(driver, dsn))
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Database migrations applied",
		zap.String("driver", driver),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// migrationURL turns a go-sql-driver DSN into the URL form migrate expects.
// Postgres DSNs are already URLs.
func migrationURL(driver, dsn string) string {
	if driver == "mysql" && !strings.HasPrefix(dsn, "mysql://") {
		return "mysql://" + dsn
	}
	return dsn
}
