//go:build integration

// Package integration runs the ledger against a real PostgreSQL started with testcontainers.
package integration

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/erp/customer-ledger/internal/infrastructure/config"
	"github.com/erp/customer-ledger/internal/infrastructure/migration"
	"github.com/erp/customer-ledger/internal/infrastructure/persistence"
	"github.com/erp/customer-ledger/migrations"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
)

var (
	sharedContainer    *tcpostgres.PostgresContainer
	sharedContainerMu  sync.Mutex
	sharedContainerDSN string
)

// TestDB is a migrated database opened through persistence.Open
type TestDB struct {
	*persistence.Database
	t *testing.T
}

// NewTestDB connects to the package's shared container, starting and migrating it on first use.
// Tables are truncated before the test runs.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	dsn := sharedDSN(t)
	logLevel := "silent"
	if os.Getenv("TEST_DB_DEBUG") != "" {
		logLevel = "info"
	}

	db, err := persistence.Open(gormpostgres.Open(dsn), &config.DatabaseConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5,
		LogLevel:        logLevel,
	}, zap.NewNop())
	require.NoError(t, err, "Failed to connect to database")

	tdb := &TestDB{Database: db, t: t}
	tdb.CleanTables()
	t.Cleanup(func() { _ = db.Close() })
	return tdb
}

func sharedDSN(t *testing.T) string {
	t.Helper()

	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()
	if sharedContainer != nil {
		return sharedContainerDSN
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	db, err := persistence.Open(gormpostgres.Open(dsn), &config.DatabaseConfig{LogLevel: "silent"}, zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)

	m, err := migration.NewFromFS(sqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err, "Failed to create migrator")
	require.NoError(t, m.Up(), "Failed to run migrations")
	_ = m.Close()

	sharedContainer = container
	sharedContainerDSN = dsn
	return dsn
}

// CleanTables empties the ledger tables
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()
	require.NoError(tdb.t, tdb.DB.Exec("TRUNCATE TABLE bills, payments, returns").Error)
}

// CleanupSharedContainer terminates the shared container. Call it from TestMain.
func CleanupSharedContainer() {
	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	if sharedContainer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = sharedContainer.Terminate(ctx)
		sharedContainer = nil
		sharedContainerDSN = ""
	}
}
