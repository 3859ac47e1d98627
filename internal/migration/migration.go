package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/marketplace/internal/audit/domain"
	eventdomain "github.com/smallbiznis/marketplace/internal/events/domain"
	invitationdomain "github.com/smallbiznis/marketplace/internal/invitation/domain"
	joinrequestdomain "github.com/smallbiznis/marketplace/internal/joinrequest/domain"
	providerdomain "github.com/smallbiznis/marketplace/internal/provider/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded Postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
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

	driver, err := postgres.WithInstance(db, &postgres.Config{})
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

// pendingIndexes back the at-most-one-pending rules. MySQL has no partial
// indexes, so there the application-level checks stand alone.
var pendingIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_provider_invitations_pending
	 ON provider_invitations (organization_id, phone_number) WHERE status = 'PENDING'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_provider_join_requests_pending
	 ON provider_join_requests (organization_id, requester_id) WHERE status = 'PENDING'`,
}

// AutoMigrate builds the schema from the models for SQLite and MySQL.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&providerdomain.Provider{},
		&invitationdomain.Invitation{},
		&joinrequestdomain.JoinRequest{},
		&eventdomain.OutboxEvent{},
		&auditdomain.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if db.Dialector.Name() == "mysql" {
		return nil
	}
	for _, stmt := range pendingIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create pending index: %w", err)
		}
	}
	return nil
}

// Migrate picks the migration strategy for the connected dialect.
func Migrate(db *gorm.DB) error {
	if db.Dialector.Name() == "postgres" {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}
	return AutoMigrate(db)
}
