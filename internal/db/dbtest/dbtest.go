// Package dbtest opens throwaway SQLite databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/swipecook/internal/db"
)

// Open returns a migrated database backed by a temp file.
//
// A file (not :memory:) keeps every pooled connection on the same data, and
// one open connection serialises writers the way a row lock would.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "swipecook.db") + "?_busy_timeout=5000&_txlock=immediate"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return gdb
}

// Pair creates two partnered users.
func Pair(t testing.TB, gdb *gorm.DB, a, b string) {
	t.Helper()
	users := []db.User{{ID: a, PartnerID: &b}, {ID: b, PartnerID: &a}}
	if err := gdb.Create(&users).Error; err != nil {
		t.Fatalf("failed to create pair: %v", err)
	}
}
