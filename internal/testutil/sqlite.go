package testutil

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/storage"
)

const sqliteMemoryDataSourcePattern = "file:%s?mode=memory&cache=shared&_foreign_keys=on"

// SQLiteTestDatabase names a private in-memory snapshot database for one test.
type SQLiteTestDatabase struct {
	configuration storage.Config
}

// NewSQLiteTestDatabase derives a database name from the test name so
// parallel tests never share snapshots.
func NewSQLiteTestDatabase(testingT *testing.T) SQLiteTestDatabase {
	testingT.Helper()
	testName := strings.NewReplacer("/", "-", " ", "-").Replace(testingT.Name())
	databaseName := fmt.Sprintf("%s-%s", testName, storage.NewID())
	return SQLiteTestDatabase{
		configuration: storage.Config{
			DriverName:     storage.DriverNameSQLite,
			DataSourceName: fmt.Sprintf(sqliteMemoryDataSourcePattern, databaseName),
			LogLevel:       logger.Error,
		},
	}
}

func (database SQLiteTestDatabase) Configuration() storage.Config {
	return database.configuration
}

func (database SQLiteTestDatabase) DataSourceName() string {
	return database.configuration.DataSourceName
}

// Open opens and migrates the database and closes it when the test ends.
func (database SQLiteTestDatabase) Open(testingT *testing.T) *gorm.DB {
	testingT.Helper()
	opened, openErr := storage.OpenDatabase(database.configuration)
	if openErr != nil {
		testingT.Fatalf("open snapshot database: %v", openErr)
	}
	if migrateErr := storage.AutoMigrate(opened); migrateErr != nil {
		testingT.Fatalf("migrate snapshot database: %v", migrateErr)
	}
	testingT.Cleanup(func() {
		if sqlDatabase, sqlErr := opened.DB(); sqlErr == nil {
			_ = sqlDatabase.Close()
		}
	})
	return opened
}
