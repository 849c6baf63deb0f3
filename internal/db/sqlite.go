package db

import (
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/pulse-dashboard/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the local SQLite database and runs migrations.
// Pass ":memory:" (or a file::memory: DSN) for a throwaway database.
func InitDB(dbPath string, verbose bool) (*gorm.DB, error) {
	level := logger.Warn
	if verbose {
		level = logger.Info
	}
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}

	if strings.Contains(dbPath, ":memory:") {
		// Each pooled connection would otherwise see its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&models.Config{}, &models.RequestLog{}); err != nil {
		return nil, err
	}
	return db, nil
}
