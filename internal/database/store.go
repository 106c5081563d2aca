package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ponytojas/airlog/config"
	"github.com/ponytojas/airlog/internal/models"
)

const (
	DriverSQLite    = "sqlite"
	DriverTimescale = "timescale"
	DriverMemory    = "memory"
)

// Store persists readings. Save assigns the ID and timestamp and returns the
// stored copy.
type Store interface {
	Save(ctx context.Context, reading models.Reading) (models.Reading, error)
	Close() error
}

// Clock supplies the persistence timestamp.
type Clock func() time.Time

// StoreError wraps a failed persistence operation together with the reading
// that could not be stored.
type StoreError struct {
	Op      string
	Reading models.Reading
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s reading co2=%d tvoc=%d: %v", e.Op, e.Reading.CO2, e.Reading.TVOC, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Open creates the store selected by cfg.Store.Driver and prepares its
// schema. A nil clock means time.Now.
func Open(ctx context.Context, cfg *config.Config, clock Clock, log logrus.FieldLogger) (Store, error) {
	if clock == nil {
		clock = time.Now
	}

	switch cfg.Store.Driver {
	case DriverSQLite, "":
		store, err := NewSQLiteStore(cfg.SQLite.Path, clock, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverTimescale:
		db, err := NewTimescaleDB(ctx, cfg, clock, log)
		if err != nil {
			return nil, err
		}
		if err := db.InitializeTable(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	case DriverMemory:
		return NewMemoryStore(clock), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
