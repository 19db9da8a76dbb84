package database

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func dialector(databaseURL string) (gorm.Dialector, string) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return postgres.Open(databaseURL), "postgres"
	}
	return sqlite.Open(databaseURL), "sqlite"
}

// NewDatabase opens postgres for postgres:// urls and sqlite otherwise, then
// runs the migrations.
func NewDatabase(databaseURL string) (*gorm.DB, error) {
	dial, kind := dialector(databaseURL)
	if kind == "sqlite" {
		path := strings.TrimPrefix(strings.SplitN(databaseURL, "?", 2)[0], "file:")
		if path != "" && !strings.Contains(databaseURL, "mode=memory") && path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", kind, err)
	}

	if kind == "postgres" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetConnMaxIdleTime(time.Minute)
	}

	if err := GetMigrator(db).Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("database ready", "driver", kind)
	return db, nil
}
