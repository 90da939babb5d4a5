package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/expresswash/jobsync/pkg/core"
)

// openTestDB opens a database for tests.
// When TEST_DATABASE_URL is set it connects to PostgreSQL; otherwise it
// opens a fresh in-memory SQLite instance pinned to one connection.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		require.NoError(t, err, "open postgres test db")

		sqlDB, err := db.DB()
		require.NoError(t, err, "get underlying sql.DB")
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(1)

		cleanupPostgresDB(db)
		t.Cleanup(func() {
			cleanupPostgresDB(db)
			_ = sqlDB.Close()
		})
		return db
	}
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open in-memory sqlite")
	require.NoError(t, applyPool(db, InMemoryPoolConfig()))
	return db
}

// cleanupPostgresDB deletes all rows so tests share one database without leaking state.
func cleanupPostgresDB(db *gorm.DB) {
	for _, tbl := range []string{"jobs", "cars", "washers", "users"} {
		db.Exec("DELETE FROM " + tbl)
	}
}

// newTestStorage returns a migrated storage and a directory over the same database.
func newTestStorage(t *testing.T) (*GormStorage, *Directory) {
	t.Helper()
	db := openTestDB(t)
	s := NewGormStorage(db)
	require.NoError(t, s.Migrate(context.Background()), "migrate schema")
	return s, NewDirectory(db)
}

func intPtr(v int) *int { return &v }

// newTestJob builds a job with a few scalar fields populated.
func newTestJob(id int) *core.Job {
	requested := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	return &core.Job{
		JobID:         id,
		State:         core.StateRequested,
		Address:       "1 Main St",
		City:          "Springfield",
		Zip:           "12345",
		JobType:       "exterior",
		TimeRequested: &requested,
	}
}

// commitJob stages and commits job in its own transaction.
func commitJob(t *testing.T, s *GormStorage, job *core.Job) {
	t.Helper()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Create(job))
	require.NoError(t, tx.Commit())
}
