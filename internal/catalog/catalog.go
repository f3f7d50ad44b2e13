// Package catalog is the read-only lookup of item metadata used to enrich
// match events. It never takes part in a match invariant.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/swipecook/internal/cache"
	"github.com/oggyb/swipecook/internal/db"
	"github.com/oggyb/swipecook/internal/wire"
)

var ErrItemNotFound = errors.New("item not found")

// Item is the payload attached to newMatch events and rating responses.
type Item = wire.Item

// Catalog resolves an item id to its metadata.
type Catalog interface {
	Get(ctx context.Context, itemID string) (*Item, error)
}

// DBCatalog reads the items table.
type DBCatalog struct {
	db *gorm.DB
}

func NewDBCatalog(database *gorm.DB) *DBCatalog {
	return &DBCatalog{db: database}
}

func (c *DBCatalog) Get(ctx context.Context, itemID string) (*Item, error) {
	var row db.Item
	err := c.db.WithContext(ctx).First(&row, "id = ?", itemID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if err != nil {
		return nil, err
	}
	return &Item{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		ImageURL:    row.ImageURL,
		Cuisine:     row.Cuisine,
	}, nil
}

// CachedCatalog is cache-first over Redis.
//
// Behavior:
//  1. Reads item:<id> from Redis and refreshes its TTL on a hit.
//  2. On a miss or decode error, falls back to the inner catalog.
//  3. Writes the fetched item back with the configured TTL.
//
// Redis errors are logged and never fail the lookup.
type CachedCatalog struct {
	inner Catalog
	cache *cache.RedisCache
	ttl   time.Duration
	log   *slog.Logger
}

func NewCachedCatalog(inner Catalog, rc *cache.RedisCache, ttl time.Duration, log *slog.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &CachedCatalog{inner: inner, cache: rc, ttl: ttl, log: log}
}

func (c *CachedCatalog) Get(ctx context.Context, itemID string) (*Item, error) {
	key := c.cache.KeyForItem(itemID)

	var it Item
	err := c.cache.GetJSON(ctx, key, &it)
	if err == nil {
		_ = c.cache.Client.Expire(ctx, key, c.ttl).Err()
		return &it, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		c.log.Warn("item cache read failed", "item", itemID, "err", err)
	}

	fetched, err := c.inner.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetJSON(ctx, key, fetched, c.ttl); err != nil {
		c.log.Warn("item cache write failed", "item", itemID, "err", err)
	}
	return fetched, nil
}
