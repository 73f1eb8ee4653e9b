package db

import (
	"fmt"

	"github.com/pwang200/xbridge-witness/log"
	migrate "github.com/rubenv/sql-migrate"
)

// RunMigrations runs migrate-up on the SQLite file at dbPath.
func RunMigrations(dbPath string, migrations migrate.MigrationSource) error {
	db, err := NewSQLiteDB(dbPath)
	if err != nil {
		return fmt.Errorf("error opening DB %s: %w", dbPath, err)
	}
	defer db.Close()

	nMigrations, err := migrate.Exec(db, "sqlite3", migrations, migrate.Up)
	if err != nil {
		return fmt.Errorf("error running migrations on %s: %w", dbPath, err)
	}

	log.Infof("successfully ran %d migrations", nMigrations)
	return nil
}
