// Package db keeps a local audit trail of credential lifecycle events in
// SQLite. The store is advisory: auth keeps working if it is unavailable.
package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open initializes the SQLite database and runs migrations.
func Open(dbPath string) (*gorm.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	gdb, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open event database: %w", err)
	}

	if err := gdb.AutoMigrate(&AuthEvent{}); err != nil {
		return nil, fmt.Errorf("failed to migrate event schema: %w", err)
	}
	return gdb, nil
}

// OpenInMemory is for tests.
func OpenInMemory() (*gorm.DB, error) {
	return Open(":memory:")
}
