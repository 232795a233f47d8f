package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/shopspring/decimal"
	billingeventdomain "github.com/smallbiznis/portbilling/internal/billingevent/domain"
	exchangeratedomain "github.com/smallbiznis/portbilling/internal/exchangerate/domain"
	invoicedomain "github.com/smallbiznis/portbilling/internal/invoice/domain"
	tariffdomain "github.com/smallbiznis/portbilling/internal/tariff/domain"
	taxdomain "github.com/smallbiznis/portbilling/internal/tax/domain"
	usagedomain "github.com/smallbiznis/portbilling/internal/usage/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RunMigrations applies the embedded postgres migrations, seed data included.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	src, err := embeddedSource()
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
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

func embeddedSource() (source.Driver, error) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}

	src, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	return src, nil
}

// Models lists every persisted billing table.
func Models() []any {
	return []any{
		&taxdomain.VatCode{},
		&tariffdomain.Tariff{},
		&tariffdomain.TariffAssignment{},
		&exchangeratedomain.ExchangeRate{},
		&usagedomain.UsageRecord{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLine{},
		&invoicedomain.InvoiceConflict{},
		&billingeventdomain.BillingEvent{},
	}
}

// AutoMigrate creates the schema through gorm for dialects without SQL
// migrations (sqlite, mysql).
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// SeedVatCodes inserts the statutory KDV codes, leaving existing rows alone.
func SeedVatCodes(conn *gorm.DB, now time.Time) error {
	codes := []taxdomain.VatCode{
		{Code: taxdomain.VatCodeStandard, Name: "KDV %20", RatePercent: decimal.NewFromInt(20)},
		{Code: taxdomain.VatCodeReduced, Name: "KDV %10", RatePercent: decimal.NewFromInt(10)},
		{Code: taxdomain.VatCodeLow, Name: "KDV %1", RatePercent: decimal.NewFromInt(1)},
		{Code: taxdomain.VatCodeExempt, Name: "KDV istisna", RatePercent: decimal.Zero},
	}
	for i := range codes {
		codes[i].CreatedAt = now
		codes[i].UpdatedAt = now
	}
	return conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&codes).Error
}
