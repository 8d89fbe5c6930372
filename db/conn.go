// Package db opens the gorm connection used by the server, the seeder and
// the tests.
package db

import (
	"fmt"
	"strings"

	"bithrah-early-access/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

// Open connects to Postgres, or to a SQLite file when the DSN starts with
// sqlite:// (local runs and tests).
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}

	if path, ok := strings.CutPrefix(dsn, sqlitePrefix); ok {
		conn, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=10000&_foreign_keys=on"), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database, %w", err)
		}

		// SQLite allows a single writer; one connection keeps transactions
		// from failing with "database is locked".
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return conn, nil
	}

	conn, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database, %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	return conn, nil
}

// Migrate creates or updates the tables owned by this service.
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&models.EarlyAccessUser{},
		&models.EarlyAccessReferral{},
		&models.Idea{},
	); err != nil {
		return fmt.Errorf("failed to automigrate tables, %w", err)
	}
	return nil
}
