package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/emberrealm/worldserver/internal/model"
	"gorm.io/gorm"
)

// ErrNoDumpPath is returned by Dump without a destination.
var ErrNoDumpPath = errors.New("dump path not set")

// Migrate creates the journal tables and seeds the realm row on first run.
func Migrate(db *gorm.DB, realmName string) error {
	if !db.Migrator().HasTable(&model.RealmInfo{}) {
		if err := db.AutoMigrate(&model.RealmInfo{}); err != nil {
			return fmt.Errorf("failed to create realm_infos table: %w", err)
		}
		err := db.Create(&model.RealmInfo{
			RealmName:   realmName,
			Description: "World server movement journal",
		}).Error
		if err != nil {
			return fmt.Errorf("failed to create realm_infos entry: %w", err)
		}
	}

	if err := db.AutoMigrate(model.JournalModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Dump snapshots a SQLite database to path with VACUUM INTO. The copy is
// written next to path and renamed over it, so readers never see a partial file.
func Dump(db *gorm.DB, path string) error {
	if path == "" {
		return ErrNoDumpPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dump directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale dump: %w", err)
	}
	if err := db.Exec("VACUUM INTO " + quoteSQL(tmp) + ";").Error; err != nil {
		return fmt.Errorf("vacuum into %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func quoteSQL(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
