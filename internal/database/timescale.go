package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/ponytojas/airlog/config"
	"github.com/ponytojas/airlog/internal/models"
)

// TimescaleDB handles database operations
type TimescaleDB struct {
	conn   *pgx.Conn
	config *config.Config
	clock  Clock
	log    logrus.FieldLogger
}

// NewTimescaleDB creates a new TimescaleDB instance
func NewTimescaleDB(ctx context.Context, cfg *config.Config, clock Clock, log logrus.FieldLogger) (*TimescaleDB, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if clock == nil {
		clock = time.Now
	}

	log.WithFields(logrus.Fields{
		"host":   cfg.Database.Host,
		"port":   cfg.Database.Port,
		"user":   cfg.Database.User,
		"dbname": cfg.Database.DBName,
	}).Info("Connecting to TimescaleDB")

	conn, err := pgx.Connect(ctx, cfg.GetDBConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &TimescaleDB{
		conn:   conn,
		config: cfg,
		clock:  clock,
		log:    log,
	}, nil
}

// Close closes the database connection
func (db *TimescaleDB) Close() error {
	return db.conn.Close(context.Background())
}

// InitializeTable checks if the table exists and creates it if it doesn't
func (db *TimescaleDB) InitializeTable(ctx context.Context) error {
	tableName := db.config.Timescale.TableName

	var exists bool
	err := db.conn.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`, tableName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if table exists: %w", err)
	}

	table := pgx.Identifier{tableName}.Sanitize()

	if exists {
		db.log.Debugf("Table %s already exists", tableName)
		// Tables created before readings had an id get one added.
		_, err = db.conn.Exec(ctx, fmt.Sprintf(`
			ALTER TABLE %s ADD COLUMN IF NOT EXISTS id BIGSERIAL
		`, table))
		if err != nil {
			return fmt.Errorf("failed to add id column: %w", err)
		}
		return nil
	}

	db.log.Infof("Creating table %s...", tableName)
	_, err = db.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE %s (
			id BIGSERIAL,
			time TIMESTAMPTZ NOT NULL,
			co2 INTEGER NOT NULL,
			tvoc INTEGER NOT NULL
		)
	`, table))
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// Convert to hypertable
	_, err = db.conn.Exec(ctx, `
		SELECT create_hypertable($1::text::regclass, 'time')
	`, table)
	if err != nil {
		return fmt.Errorf("failed to convert table to hypertable: %w", err)
	}

	db.log.Infof("Table %s created and converted to hypertable", tableName)
	return nil
}

// Save inserts a reading stamped with the store's clock and returns it with
// the id assigned by the database.
func (db *TimescaleDB) Save(ctx context.Context, reading models.Reading) (models.Reading, error) {
	now := db.clock()

	var id int64
	err := db.conn.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (time, co2, tvoc)
		VALUES ($1, $2, $3)
		RETURNING id
	`, pgx.Identifier{db.config.Timescale.TableName}.Sanitize()), now, reading.CO2, reading.TVOC).Scan(&id)
	if err != nil {
		return models.Reading{}, &StoreError{Op: "insert", Reading: reading, Err: err}
	}

	return models.Reading{
		ID:        uint(id),
		Timestamp: now.Format(models.TimestampFormat),
		CO2:       reading.CO2,
		TVOC:      reading.TVOC,
	}, nil
}
