package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const databaseFile = "phoenixchat.db"

// Open opens (creating if necessary) the chat database under dataDir and
// migrates both storage schemes. The legacy table is migrated too so that
// partially-migrated installs keep their remaining legacy rows readable.
func Open(dataDir string) (*gorm.DB, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
	}
	path := filepath.Join(dataDir, databaseFile)
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := gdb.AutoMigrate(&ChatRecord{}, &LegacyChat{}); err != nil {
		return nil, fmt.Errorf("migrate database schema: %w", err)
	}
	return gdb, nil
}

// OpenMemory opens an in-memory database. Used by tests.
func OpenMemory() (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	if err := gdb.AutoMigrate(&ChatRecord{}, &LegacyChat{}); err != nil {
		return nil, fmt.Errorf("migrate database schema: %w", err)
	}
	return gdb, nil
}
