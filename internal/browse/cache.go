package browse

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/coocood/freecache"
	gocache "github.com/eko/gocache/lib/v4/cache"
	libstore "github.com/eko/gocache/lib/v4/store"
	gocachefreecache "github.com/eko/gocache/store/freecache/v4"
	"github.com/genricoloni/bluctl/internal/domain"
	"github.com/golang/snappy"
	"go.uber.org/zap"
)

const _minCacheBytes = 512 * 1024

// pageCache keeps recently fetched browse pages as snappy-compressed JSON
type pageCache struct {
	logger *zap.Logger
	cache  gocache.CacheInterface[[]byte]
	ttl    time.Duration
}

func newPageCache(logger *zap.Logger, size int, ttl time.Duration) *pageCache {
	if size < _minCacheBytes {
		size = _minCacheBytes
	}
	store := gocachefreecache.NewFreecache(freecache.NewCache(size))
	return &pageCache{
		logger: logger,
		cache:  gocache.New[[]byte](store),
		ttl:    ttl,
	}
}

func cacheKey(key, query string) string {
	return "browse:" + url.Values{"k": {key}, "q": {query}}.Encode()
}

func (c *pageCache) get(ctx context.Context, key, query string) (domain.BrowsePage, bool) {
	if c.ttl <= 0 {
		return domain.BrowsePage{}, false
	}
	value, err := c.cache.Get(ctx, cacheKey(key, query))
	if err != nil {
		return domain.BrowsePage{}, false
	}
	decoded, err := snappy.Decode(nil, value)
	if err != nil {
		c.logger.Debug("Browse cache decode failed", zap.Error(err))
		return domain.BrowsePage{}, false
	}
	var page domain.BrowsePage
	if err := json.Unmarshal(decoded, &page); err != nil {
		return domain.BrowsePage{}, false
	}
	return page, true
}

func (c *pageCache) put(ctx context.Context, key, query string, page domain.BrowsePage) {
	if c.ttl <= 0 {
		return
	}
	payload, err := json.Marshal(page)
	if err != nil {
		return
	}
	_ = c.cache.Set(ctx, cacheKey(key, query), snappy.Encode(nil, payload), libstore.WithExpiration(c.ttl))
}

func (c *pageCache) clear(ctx context.Context) error {
	return c.cache.Clear(ctx)
}
