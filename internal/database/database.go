package database

import (
	"log"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"booklending/internal/config"
	"booklending/internal/models"
)

// activeLoanIndex backs the one-active-loan-per-book rule at the storage level.
// Both PostgreSQL and SQLite accept partial unique indexes in this form.
const activeLoanIndex = `CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_loan_per_book
	ON loans (book_id) WHERE is_returned = false`

// GormConfig is shared by the production and test dialectors. TranslateError
// turns driver-specific unique violations into gorm.ErrDuplicatedKey.
func GormConfig() *gorm.Config {
	return &gorm.Config{TranslateError: true}
}

// Open connects to PostgreSQL and applies the pool limits from cfg.
func Open(cfg config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), GormConfig())
	if err != nil {
		return nil, errors.Wrap(err, "connect database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get generic DB")
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// Migrate creates or updates the tables for every model and the partial index
// guarding active loans.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return errors.Wrap(err, "auto-migrate models")
	}
	if err := db.Exec(activeLoanIndex).Error; err != nil {
		return errors.Wrap(err, "create active loan index")
	}
	log.Printf("[INFO] Migrate: schema is up to date")
	return nil
}
