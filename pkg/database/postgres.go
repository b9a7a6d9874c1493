// Package database opens the PostgreSQL connection and runs schema
// migrations before the store is handed to the repositories.
package database

import (
	"fmt"

	"github.com/Gobusters/ectologger"
	stemdb "github.com/Ramsey-B/stem/pkg/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Ramsey-B/sage/config"
)

// Connect opens the PostgreSQL connection, applies pool settings and runs
// pending migrations. The returned DB wraps sqlx with query logging and
// transaction helpers.
func Connect(cfg *config.Config, logger ectologger.Logger) (stemdb.DB, *sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)

	db, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	if err := runMigrations(cfg, db, logger); err != nil {
		db.Close()
		return nil, nil, err
	}

	return stemdb.NewDatabaseInstance(db, logger), db, nil
}

func runMigrations(cfg *config.Config, db *sqlx.DB, logger ectologger.Logger) error {
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	service := stemdb.NewMigrationService(logger, &stemdb.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := service.Migrate(cfg.DatabaseName, driver); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
