package ledger

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// RunMigrations applies all pending schema migrations of the connection's dialect.
// Already applied migrations are skipped.
func RunMigrations(db *DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations/"+string(db.dialect))
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	var (
		dbDriver database.Driver
		owned    bool
	)
	switch db.dialect {
	case DialectSQLite:
		dbDriver, err = migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	case DialectPostgres:
		// the postgres driver pins a connection until closed, so it gets its own pool
		var conn *sql.DB
		if conn, err = sql.Open(string(DialectPostgres), db.dsn); err != nil {
			return fmt.Errorf("open migration connection: %w", err)
		}
		dbDriver, err = migratepostgres.WithInstance(conn, &migratepostgres.Config{})
		if err != nil {
			conn.Close()
		}
		owned = true
	default:
		err = fmt.Errorf("unsupported ledger driver %q", db.dialect)
	}
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, string(db.dialect), dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if owned {
		defer func() {
			if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
				logger.Warn("closing migrator failed", "source", srcErr, "db", dbErr)
			}
		}()
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
