package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	checkpointrepo "github.com/smallbiznis/purchasesync/internal/checkpoint/repository"
	etldomain "github.com/smallbiznis/purchasesync/internal/etl/domain"
	"github.com/smallbiznis/purchasesync/pkg/db"
	"gorm.io/gorm"
)

const defaultCheckpointTable = "etl_metadata"

// RunMigrations applies the embedded postgres migrations for the checkpoint
// and run ledger tables.
func RunMigrations(sqlDB *sql.DB) error {
	if sqlDB == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Migrate prepares the bookkeeping tables. Postgres gets the versioned
// migrations; other dialects fall back to AutoMigrate. A checkpoint table
// renamed through sync config is always created with AutoMigrate.
// Fact tables are created by the reporting sink on first write.
func Migrate(conn *gorm.DB, checkpointTable string) error {
	if conn.Dialector.Name() == db.TypePostgres {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
	} else {
		if err := conn.AutoMigrate(&etldomain.Run{}); err != nil {
			return fmt.Errorf("migrate etl_runs: %w", err)
		}
		if err := conn.Table(defaultCheckpointTable).AutoMigrate(&checkpointrepo.Row{}); err != nil {
			return fmt.Errorf("migrate %s: %w", defaultCheckpointTable, err)
		}
	}

	if checkpointTable != "" && checkpointTable != defaultCheckpointTable {
		if err := conn.Table(checkpointTable).AutoMigrate(&checkpointrepo.Row{}); err != nil {
			return fmt.Errorf("migrate %s: %w", checkpointTable, err)
		}
	}
	return nil
}
