package database

import (
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"

	"gorm.io/gorm"
)

//go:embed migrations/*/up.sql migrations/*/down.sql
var migrationsFS embed.FS

var migrationVersionRegex = regexp.MustCompile(`^(\d+)_`)

type SchemaVersion uint64

type SchemaMigration struct {
	Version SchemaVersion `gorm:"primaryKey;autoIncrement:false"`
}

func CurrentSchemaVersion(db *gorm.DB) (SchemaVersion, error) {
	var schemaMigration SchemaMigration

	err := db.
		Model(&SchemaMigration{}).
		Select("version").
		Order("version desc").
		Limit(1).
		Scan(&schemaMigration).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}

	return schemaMigration.Version, nil
}

// Migration is one directory under migrations/, named NNNN_description.
type Migration struct {
	Version SchemaVersion
	Name    string
}

func (migration Migration) Up(db *gorm.DB) error {
	sql, err := migration.readSQL("up.sql")
	if err != nil {
		return err
	}
	return db.Exec(sql).Error
}

func (migration Migration) Down(db *gorm.DB) error {
	sql, err := migration.readSQL("down.sql")
	if err != nil {
		return err
	}
	return db.Exec(sql).Error
}

func (migration Migration) readSQL(file string) (string, error) {
	data, err := fs.ReadFile(migrationsFS, fmt.Sprintf("migrations/%s/%s", migration.Name, file))
	if err != nil {
		return "", fmt.Errorf("failed to read %s for migration %s: %w", file, migration.Name, err)
	}
	return string(data), nil
}

// Migrate applies every embedded migration newer than the recorded schema
// version, each in its own transaction.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&SchemaMigration{}); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	currentVersion, err := CurrentSchemaVersion(db)
	if err != nil {
		return err
	}

	migrations, err := MigrationsNewerThan(currentVersion)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{Version: migration.Version}).Error
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

func MigrationsNewerThan(minVersion SchemaVersion) ([]Migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		match := migrationVersionRegex.FindStringSubmatch(entry.Name())
		if len(match) != 2 {
			return nil, fmt.Errorf("invalid migration directory name: %s", entry.Name())
		}

		versionInt, err := strconv.ParseUint(match[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid migration version: %s - %w", match[1], err)
		}

		version := SchemaVersion(versionInt)
		if version <= minVersion {
			continue
		}

		migrations = append(migrations, Migration{Version: version, Name: entry.Name()})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}
