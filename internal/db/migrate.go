package db

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

var ErrUnknownDirection = errors.New("unknown migration direction")

// Migrate applies the embedded schema migrations. An up-to-date schema is not an error.
func Migrate(postgresURL string, dir Direction) error {
	if dir != Up && dir != Down {
		return fmt.Errorf("%w: %q", ErrUnknownDirection, dir)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrationURL(postgresURL))
	if err != nil {
		return fmt.Errorf("start migrations: %w", err)
	}
	defer m.Close()

	if dir == Up {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", dir, err)
	}
	return nil
}

// migrationURL rewrites a libpq style URL to the scheme the pgx/v5 driver registers.
func migrationURL(postgresURL string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(postgresURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(postgresURL, prefix)
		}
	}
	return postgresURL
}
