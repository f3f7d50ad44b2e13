package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/oggyb/swipecook/internal/config"
)

func newSQLiteConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.DB.Driver = "sqlite"
	cfg.DB.DSN = filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000"
	cfg.DB.LogLevel = "silent"
	return cfg
}

func TestNewDB_SQLiteMigrates(t *testing.T) {
	gdb, err := NewDB(newSQLiteConfig(t))
	require.NoError(t, err)

	for _, m := range Models() {
		assert.True(t, gdb.Migrator().HasTable(m), "%T", m)
	}
	assert.True(t, gdb.Migrator().HasIndex(&Match{}, "idx_match_pair_item"))
}

func TestNewDB_UnknownDriver(t *testing.T) {
	cfg := &config.Config{}
	cfg.DB.Driver = "oracle"
	_, err := NewDB(cfg)
	assert.ErrorContains(t, err, "unsupported db driver")
}

func TestMatchUniqueIndex_RejectsDuplicate(t *testing.T) {
	gdb, err := NewDB(newSQLiteConfig(t))
	require.NoError(t, err)

	m := Match{ID: "m1", UserA: "a", UserB: "b", ItemID: "x", Status: "matched"}
	require.NoError(t, gdb.Create(&m).Error)

	dup := Match{ID: "m2", UserA: "a", UserB: "b", ItemID: "x", Status: "matched"}
	assert.Error(t, gdb.Create(&dup).Error)
}

func TestSeedTestData(t *testing.T) {
	gdb, err := NewDB(newSQLiteConfig(t))
	require.NoError(t, err)

	require.NoError(t, SeedTestData(gdb, 3, nil))

	var users []User
	require.NoError(t, gdb.Order("id").Find(&users).Error)
	require.Len(t, users, 6)
	for _, u := range users {
		require.NotNil(t, u.PartnerID)
	}

	var partner User
	require.NoError(t, gdb.First(&partner, "id = ?", *users[0].PartnerID).Error)
	assert.Equal(t, users[0].ID, *partner.PartnerID)

	var items int64
	require.NoError(t, gdb.Model(&Item{}).Count(&items).Error)
	assert.EqualValues(t, len(seedItems), items)

	// idempotent
	require.NoError(t, SeedTestData(gdb, 3, nil))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, parseLogLevel("off"))
	assert.Equal(t, logger.Info, parseLogLevel("DEBUG"))
	assert.Equal(t, logger.Warn, parseLogLevel(""))
}
