package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Serial    SerialConfig    `mapstructure:"serial"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Store     StoreConfig     `mapstructure:"store"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Timescale TimescaleConfig `mapstructure:"timescale"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// SerialConfig holds the sensor's serial port settings
type SerialConfig struct {
	Device      string        `mapstructure:"device"`
	BaudRate    int           `mapstructure:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	Delimiter   string        `mapstructure:"delimiter"`
}

// PipelineConfig holds the sampling cadence
type PipelineConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// StoreConfig selects the reading store: sqlite, timescale or memory
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// SQLiteConfig holds the sqlite database location
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// DatabaseConfig holds Postgres connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// TimescaleConfig holds Timescale specific configuration
type TimescaleConfig struct {
	TableName string `mapstructure:"table_name"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds the optional Prometheus listener. Empty disables it.
type MetricsConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
}

// envBindings maps configuration keys to environment variables
var envBindings = map[string]string{
	"serial.device":          "SERIAL_DEVICE",
	"serial.baud_rate":       "SERIAL_BAUD_RATE",
	"serial.read_timeout":    "SERIAL_READ_TIMEOUT",
	"serial.delimiter":       "SERIAL_DELIMITER",
	"pipeline.interval":      "PIPELINE_INTERVAL",
	"store.driver":           "STORE_DRIVER",
	"sqlite.path":            "SQLITE_PATH",
	"database.host":          "DATABASE_HOST",
	"database.port":          "DATABASE_PORT",
	"database.user":          "DATABASE_USER",
	"database.password":      "DATABASE_PASSWORD",
	"database.dbname":        "DATABASE_DBNAME",
	"database.sslmode":       "DATABASE_SSLMODE",
	"timescale.table_name":   "TIMESCALE_TABLE_NAME",
	"log.level":              "LOG_LEVEL",
	"log.format":             "LOG_FORMAT",
	"metrics.listen_address": "METRICS_LISTEN_ADDRESS",
}

// LoadConfig loads configuration from file and/or environment variables.
// A missing config.yaml in path is not an error. found reports whether a
// config file was read.
func LoadConfig(path string) (cfg *Config, found bool, err error) {
	v := viper.New()

	// Set default values first (lowest precedence)
	defaultConfig := GetDefaultConfig()
	v.SetDefault("serial.device", defaultConfig.Serial.Device)
	v.SetDefault("serial.baud_rate", defaultConfig.Serial.BaudRate)
	v.SetDefault("serial.read_timeout", defaultConfig.Serial.ReadTimeout)
	v.SetDefault("serial.delimiter", defaultConfig.Serial.Delimiter)

	v.SetDefault("pipeline.interval", defaultConfig.Pipeline.Interval)

	v.SetDefault("store.driver", defaultConfig.Store.Driver)
	v.SetDefault("sqlite.path", defaultConfig.SQLite.Path)

	v.SetDefault("database.host", defaultConfig.Database.Host)
	v.SetDefault("database.port", defaultConfig.Database.Port)
	v.SetDefault("database.user", defaultConfig.Database.User)
	v.SetDefault("database.password", defaultConfig.Database.Password)
	v.SetDefault("database.dbname", defaultConfig.Database.DBName)
	v.SetDefault("database.sslmode", defaultConfig.Database.SSLMode)
	v.SetDefault("timescale.table_name", defaultConfig.Timescale.TableName)

	v.SetDefault("log.level", defaultConfig.Log.Level)
	v.SetDefault("log.format", defaultConfig.Log.Format)
	v.SetDefault("metrics.listen_address", defaultConfig.Metrics.ListenAddress)

	// Try to load from config file (medium precedence)
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Environment variables (highest precedence), e.g. serial.device -> SERIAL_DEVICE
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, false, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, false, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		found = true
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, found, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, found, err
	}

	return &config, found, nil
}

// GetDefaultConfig returns default configuration
func GetDefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Device:      "/dev/ttyACM0",
			BaudRate:    115200,
			ReadTimeout: 10 * time.Second,
			Delimiter:   "\n",
		},
		Pipeline: PipelineConfig{
			Interval: 60 * time.Second,
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		SQLite: SQLiteConfig{
			Path: "database.sqlite",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			DBName:   "air_quality",
			SSLMode:  "disable",
		},
		Timescale: TimescaleConfig{
			TableName: "reading",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate rejects settings the daemon cannot start with
func (c *Config) Validate() error {
	var errs []error
	if c.Serial.Device == "" {
		errs = append(errs, errors.New("serial.device must not be empty"))
	}
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud_rate must be positive, got %d", c.Serial.BaudRate))
	}
	if c.Serial.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("serial.read_timeout must be positive, got %s", c.Serial.ReadTimeout))
	}
	if c.Pipeline.Interval <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.interval must be positive, got %s", c.Pipeline.Interval))
	}
	switch c.Store.Driver {
	case "sqlite", "timescale", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver must be sqlite, timescale or memory, got %q", c.Store.Driver))
	}
	if c.Store.Driver == "sqlite" && c.SQLite.Path == "" {
		errs = append(errs, errors.New("sqlite.path must not be empty"))
	}
	return errors.Join(errs...)
}

// GetDBConnString returns the database connection string
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}
