package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/swipecook/internal/cache"
	"github.com/oggyb/swipecook/internal/config"
	"github.com/oggyb/swipecook/internal/metrics"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.)
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Metrics    *metrics.Registry
}

// New creates a new AppContext. A nil config falls back to defaults from the
// environment and a nil metrics registry gets a fresh one.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger, m *metrics.Registry) *AppContext {
	if cfg == nil {
		cfg = config.New()
	}
	if m == nil {
		m = metrics.New()
	}
	return &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Metrics:    m,
	}
}
