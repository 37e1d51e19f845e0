package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/model"
)

const (
	// DriverNameSQLite is the only driver the snapshot store runs on.
	DriverNameSQLite = "sqlite"

	// sqlite allows one writer at a time.
	sqliteMaxOpenConnections = 1

	errorMessageUnsupportedDatabaseDriver = "storage: unsupported database driver"
	errorMessageMissingDataSourceName     = "storage: missing database data source name"
	errorMessageOpenSnapshotDatabase      = "storage: open snapshot database"
)

var (
	// ErrUnsupportedDatabaseDriver indicates a driver other than sqlite was configured.
	ErrUnsupportedDatabaseDriver = errors.New(errorMessageUnsupportedDatabaseDriver)
	// ErrMissingDataSourceName indicates the database data source name configuration was omitted.
	ErrMissingDataSourceName = errors.New(errorMessageMissingDataSourceName)
)

// Config locates the branding snapshot database. An empty DriverName means sqlite.
type Config struct {
	DriverName     string
	DataSourceName string
	// LogLevel controls gorm's own logger; zero keeps gorm silent.
	LogLevel logger.LogLevel
}

// OpenDatabase opens the branding snapshot database.
func OpenDatabase(configuration Config) (*gorm.DB, error) {
	driverName := strings.ToLower(strings.TrimSpace(configuration.DriverName))
	if driverName != "" && driverName != DriverNameSQLite {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDatabaseDriver, driverName)
	}
	dataSourceName := strings.TrimSpace(configuration.DataSourceName)
	if dataSourceName == "" {
		return nil, ErrMissingDataSourceName
	}

	logLevel := configuration.LogLevel
	if logLevel == 0 {
		logLevel = logger.Silent
	}
	database, openErr := gorm.Open(sqlite.Open(dataSourceName), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if openErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageOpenSnapshotDatabase, openErr)
	}
	sqlDatabase, sqlErr := database.DB()
	if sqlErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageOpenSnapshotDatabase, sqlErr)
	}
	sqlDatabase.SetMaxOpenConns(sqliteMaxOpenConnections)
	return database, nil
}

// AutoMigrate creates the branding snapshot table.
func AutoMigrate(database *gorm.DB) error {
	return database.AutoMigrate(&model.BrandingSnapshot{})
}

// NewID generates a snapshot row id.
func NewID() string {
	return uuid.NewString()
}
