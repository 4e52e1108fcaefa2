package upstream

import (
	"context"
	"time"

	"github.com/coocood/freecache"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hamed0406/waterwatch/internal/domain"
	"github.com/hamed0406/waterwatch/internal/metrics"
)

type responseCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
}

// CachedFetcher serves repeated lookups of the same location from memory
// for a short TTL. Only successful responses are stored.
type CachedFetcher struct {
	next    Fetcher
	cache   responseCache
	metrics metrics.Recorder
	log     *zap.Logger
}

var _ Fetcher = (*CachedFetcher)(nil)

// NewCachedFetcher wraps next. ttl <= 0 disables caching.
func NewCachedFetcher(next Fetcher, ttl time.Duration, sizeMB int, m metrics.Recorder, log *zap.Logger) *CachedFetcher {
	if m == nil {
		m = metrics.Noop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	cf := &CachedFetcher{next: next, cache: noopCache{}, metrics: m, log: log}
	if ttl <= 0 || sizeMB <= 0 {
		return cf
	}
	secs := int(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	cf.cache = &freeCache{cache: freecache.NewCache(sizeMB * 1024 * 1024), ttl: secs}
	log.Info("upstream_cache_enabled", zap.Int("size_mb", sizeMB), zap.Int("ttl_s", secs))
	return cf
}

func (f *CachedFetcher) FetchOutageInfo(ctx context.Context, loc domain.MonitoredLocation) (*domain.RawResponse, bool) {
	if _, disabled := f.cache.(noopCache); disabled {
		return f.next.FetchOutageInfo(ctx, loc)
	}
	key := loc.Key()
	if raw, ok := f.cache.Get(key); ok {
		var resp domain.RawResponse
		if err := json.Unmarshal(raw, &resp); err == nil {
			f.metrics.IncCacheHits()
			return &resp, true
		}
	}
	f.metrics.IncCacheMisses()

	resp, ok := f.next.FetchOutageInfo(ctx, loc)
	if !ok {
		return nil, false
	}
	if raw, err := json.Marshal(resp); err == nil {
		f.cache.Set(key, raw)
	} else {
		f.log.Debug("upstream_cache_encode_error", zap.Error(err))
	}
	return resp, true
}

type freeCache struct {
	cache *freecache.Cache
	ttl   int
}

func (c *freeCache) Get(key string) ([]byte, bool) {
	val, err := c.cache.Get([]byte(key))
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *freeCache) Set(key string, value []byte) {
	_ = c.cache.Set([]byte(key), value, c.ttl)
}

type noopCache struct{}

func (noopCache) Get(_ string) ([]byte, bool) { return nil, false }
func (noopCache) Set(_ string, _ []byte)      {}
