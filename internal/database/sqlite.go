package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ponytojas/airlog/internal/models"
)

// SQLiteStore writes readings to a local sqlite file.
type SQLiteStore struct {
	db    *gorm.DB
	clock Clock
}

// NewSQLiteStore opens the sqlite file at dbPath, creating it and its
// directory if needed, and applies pending migrations
func NewSQLiteStore(dbPath string, clock Clock, log logrus.FieldLogger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if log == nil {
		log = logrus.StandardLogger()
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.New(log, gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	if err := Migrate(db); err != nil {
		closeGorm(db)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if clock == nil {
		clock = time.Now
	}

	return &SQLiteStore{db: db, clock: clock}, nil
}

// Save inserts a single row; the insert is its own transaction.
func (s *SQLiteStore) Save(ctx context.Context, reading models.Reading) (models.Reading, error) {
	row := models.Reading{
		Timestamp: s.clock().Format(models.TimestampFormat),
		CO2:       reading.CO2,
		TVOC:      reading.TVOC,
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Reading{}, &StoreError{Op: "insert", Reading: reading, Err: err}
	}

	return row, nil
}

// Close closes the underlying database handle
func (s *SQLiteStore) Close() error {
	return closeGorm(s.db)
}

func closeGorm(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
