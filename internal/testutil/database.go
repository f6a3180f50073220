package testutil

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tphakala/floranet-go/internal/datastore"
	"github.com/tphakala/floranet-go/internal/logger"
)

// NewTestDB returns a migrated SQLite database in a temporary directory.
// The connection is closed when the test ends.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	mgr, err := datastore.NewSQLiteManager(datastore.Config{
		Path:   filepath.Join(t.TempDir(), "floranet_test.db"),
		Logger: QuietLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, mgr.Initialize())

	t.Cleanup(func() { _ = mgr.Close() })
	return mgr.DB()
}

// QuietLogger returns a logger that discards everything below ERROR.
func QuietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}
