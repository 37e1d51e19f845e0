package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestOpenDatabaseWrapsSQLiteOpenError(testingT *testing.T) {
	missingDirectory := filepath.Join(testingT.TempDir(), "missing")
	dataSourceName := fmt.Sprintf("file:%s?mode=rwc", filepath.Join(missingDirectory, "snapshots.db"))

	_, openErr := OpenDatabase(Config{DataSourceName: dataSourceName})

	require.Error(testingT, openErr)
	require.Contains(testingT, openErr.Error(), errorMessageOpenSnapshotDatabase)
}

func TestOpenDatabaseLimitsSQLiteToOneConnection(testingT *testing.T) {
	database, openErr := OpenDatabase(Config{
		DriverName:     " SQLite ",
		DataSourceName: "file:limits-" + NewID() + "?mode=memory&cache=shared",
		LogLevel:       logger.Error,
	})
	require.NoError(testingT, openErr)
	sqlDatabase, sqlErr := database.DB()
	require.NoError(testingT, sqlErr)
	testingT.Cleanup(func() { _ = sqlDatabase.Close() })

	require.Equal(testingT, sqliteMaxOpenConnections, sqlDatabase.Stats().MaxOpenConnections)
}
