package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"limitbot/src/database/migrations"
	"limitbot/src/model"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// MainDB is the read/write connection set by InitMainDB.
var MainDB *gorm.DB

// InitMainDB opens the order store from env config and assigns MainDB.
// This should be called once at application startup (e.g. in main()).
func InitMainDB() error {
	db, err := Open(GetConfig())
	if err != nil {
		return err
	}

	MainDB = db
	return nil
}

// Open connects to the configured database and brings the schema up to date.
func Open(config Config) (*gorm.DB, error) {
	dialector, err := dialectorFor(config)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector,
		&gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get DB from GORM: %w", err)
	}

	maxOpen := config.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 20
		if driverName(config) == DriverSQLite {
			// sqlite serializes writers; a single connection avoids "database is locked".
			maxOpen = 1
		}
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	logrus.WithField("driver", driverName(config)).Info("[database] connection established")

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate renames legacy columns, runs AutoMigrate for every model of the
// store and then the data migrations.
func Migrate(db *gorm.DB) error {
	// Rename legacy camelCase columns before AutoMigrate so existing data is
	// kept under the current column names.
	if err := migrations.PrepareLegacyOrderColumns(db); err != nil {
		return fmt.Errorf("failed to prepare legacy order columns: %w", err)
	}

	if err := db.AutoMigrate(
		&model.Order{},
		&model.OrderLog{},
		&model.OrderExecutionLog{},
		&model.Exception{},
		&migrations.DataMigration{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("failed to run data migrations: %w", err)
	}

	logrus.Info("[database] migrations completed")

	return nil
}

func driverName(config Config) string {
	driver := strings.ToLower(strings.TrimSpace(config.DatabaseDriver))
	if driver == "" && (strings.HasPrefix(config.DatabaseURL, "postgres://") || strings.HasPrefix(config.DatabaseURL, "postgresql://")) {
		return DriverPostgres
	}
	if driver == "" {
		return DriverSQLite
	}
	return driver
}

func dialectorFor(config Config) (gorm.Dialector, error) {
	switch driverName(config) {
	case DriverSQLite:
		return sqlite.Open(sqliteDSN(config.DatabaseURL)), nil
	case DriverPostgres:
		return postgres.Open(config.DatabaseURL), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", config.DatabaseDriver)
}

// sqliteDSN adds a busy timeout and WAL journaling to file databases.
func sqliteDSN(path string) string {
	if path == "" {
		path = "orders.db"
	}
	if strings.Contains(path, ":memory:") || strings.Contains(path, "mode=memory") || strings.Contains(path, "?") {
		return path
	}
	return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
}
