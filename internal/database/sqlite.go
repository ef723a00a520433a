package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/questlog/questlog/internal/dice"
	"github.com/questlog/questlog/internal/initiative"
	"github.com/questlog/questlog/internal/notes"
	"github.com/questlog/questlog/internal/tables"
	"github.com/questlog/questlog/internal/users"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
// Ensuring the schema is an explicit startup action; request handling never
// re-checks it.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	// Cascade deletes depend on enforced foreign keys.
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// Migrate creates or updates the schema for every persisted entity and then
// applies the named data migrations. Idempotent.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(
		&users.User{},
		&tables.Table{},
		&tables.Membership{},
		&notes.Note{},
		&notes.Permission{},
		&dice.RollRecord{},
		&initiative.Session{},
		&initiative.Entry{},
		&migrationRecord{},
	); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}
