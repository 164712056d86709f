package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"xmrstats/config"
	"xmrstats/models"
)

// CacheMode indicates which cache backend is active
type CacheMode string

const (
	CacheModeRedis    CacheMode = "redis"
	CacheModeInMemory CacheMode = "in-memory"

	DefaultCacheTTL = 30 * time.Second

	mirrorKeyPrefix = "xmrstats:"

	// upper bound of a fetch shared by concurrent callers
	sharedFetchTimeout = 30 * time.Second
)

// CacheItem is one cached source snapshot
type CacheItem struct {
	Data      interface{}
	Timestamp time.Time
}

// CacheService keeps the last successful snapshot of every source. Entries
// are never evicted on failure so they can be served stale; only Clear
// removes them. When Redis is enabled, snapshots are mirrored there so a
// restarted process can still serve stale data.
type CacheService struct {
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time

	mu      sync.RWMutex
	entries map[string]*CacheItem
	flight  singleflight.Group

	// Redis mirror
	redisEnabled bool
	redis        *redis.Client
	redisCtx     context.Context
	redisCancel  context.CancelFunc
	mode         CacheMode
	modeMutex    sync.RWMutex

	stopOnce sync.Once
	stopChan chan struct{}
}

func NewCacheService(cfg *config.Config) *CacheService {
	ctx, cancel := context.WithCancel(context.Background())

	ttl := cfg.CacheTTLDuration()
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	cs := &CacheService{
		ttl:          ttl,
		retention:    cfg.MirrorRetentionDuration(),
		now:          time.Now,
		entries:      make(map[string]*CacheItem),
		redisEnabled: cfg.Redis.Enabled,
		redisCtx:     ctx,
		redisCancel:  cancel,
		mode:         CacheModeInMemory,
		stopChan:     make(chan struct{}),
	}

	if cfg.Redis.Enabled {
		cs.connectRedis(cfg.Redis)
	} else {
		log.Info("Redis disabled in config, using in-memory cache only")
	}

	return cs
}

func (cs *CacheService) connectRedis(rc config.RedisConfig) {
	if rc.Address == "" {
		log.Warn("Redis address not configured, using in-memory cache")
		return
	}

	options := &redis.Options{
		Addr:         rc.Address,
		Password:     rc.Password,
		DB:           rc.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     5,
		MinIdleConns: 1,
		MaxRetries:   2,
	}

	if rc.UseTLS {
		options.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cs.redis = redis.NewClient(options)

	ctx, cancel := context.WithTimeout(cs.redisCtx, 5*time.Second)
	defer cancel()

	if err := cs.redis.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Redis connection failed, running in IN-MEMORY mode")
		cs.setMode(CacheModeInMemory)
		return
	}

	log.WithField("address", rc.Address).Info("Redis mirror connected")
	cs.setMode(CacheModeRedis)
}

func (cs *CacheService) setMode(mode CacheMode) {
	cs.modeMutex.Lock()
	defer cs.modeMutex.Unlock()
	if cs.mode != mode {
		log.Infof("Cache mode changed: %s -> %s", cs.mode, mode)
		cs.mode = mode
	}
}

// Mode reports the active backend
func (cs *CacheService) Mode() CacheMode {
	cs.modeMutex.RLock()
	defer cs.modeMutex.RUnlock()
	return cs.mode
}

// TTL is the validity window of an entry
func (cs *CacheService) TTL() time.Duration {
	return cs.ttl
}

// Start launches the Redis health loop when the mirror is enabled
func (cs *CacheService) Start() {
	if cs.redis == nil {
		return
	}
	go cs.runHealthCheckLoop()
}

func (cs *CacheService) Stop() {
	cs.stopOnce.Do(func() {
		close(cs.stopChan)
		cs.redisCancel()
		if cs.redis != nil {
			cs.redis.Close()
		}
	})
}

func (cs *CacheService) runHealthCheckLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cs.checkRedisHealth()
		case <-cs.stopChan:
			return
		}
	}
}

func (cs *CacheService) checkRedisHealth() {
	if cs.redis == nil {
		return
	}

	ctx, cancel := context.WithTimeout(cs.redisCtx, 2*time.Second)
	defer cancel()

	err := cs.redis.Ping(ctx).Err()
	mode := cs.Mode()

	if mode == CacheModeRedis && err != nil {
		log.WithError(err).Warn("Redis health check failed, switching to IN-MEMORY mode")
		cs.setMode(CacheModeInMemory)
	} else if mode == CacheModeInMemory && err == nil {
		log.Info("Redis reconnected, switching back to REDIS mode")
		cs.syncInMemoryToRedis()
		cs.setMode(CacheModeRedis)
	}
}

// syncInMemoryToRedis copies the in-memory snapshots to the mirror on reconnection
func (cs *CacheService) syncInMemoryToRedis() {
	cs.mu.RLock()
	snapshot := make(map[string]interface{}, len(cs.entries))
	for k, item := range cs.entries {
		snapshot[k] = item.Data
	}
	cs.mu.RUnlock()

	synced := 0
	for k, data := range snapshot {
		if err := cs.setRedis(k, data); err == nil {
			synced++
		}
	}
	log.Infof("Synced %d cache entries to Redis", synced)
}

// ============================================
// In-memory store
// ============================================

func (cs *CacheService) get(key string) (*CacheItem, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	item, ok := cs.entries[key]
	return item, ok
}

func (cs *CacheService) set(key string, data interface{}) {
	cs.mu.Lock()
	cs.entries[key] = &CacheItem{Data: data, Timestamp: cs.now()}
	cs.mu.Unlock()

	if cs.Mode() == CacheModeRedis {
		if err := cs.setRedis(key, data); err != nil {
			log.WithError(err).WithField("key", key).Warn("Redis mirror SET failed")
		}
	}
}

func (cs *CacheService) isValid(item *CacheItem) bool {
	return cs.now().Sub(item.Timestamp) < cs.ttl
}

// ============================================
// Redis mirror
// ============================================

func (cs *CacheService) setRedis(key string, data interface{}) error {
	if cs.redis == nil {
		return fmt.Errorf("redis client not initialized")
	}

	ctx, cancel := context.WithTimeout(cs.redisCtx, 2*time.Second)
	defer cancel()

	jsonData, err := jsonAPI.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	return cs.redis.Set(ctx, mirrorKeyPrefix+key, jsonData, cs.retention).Err()
}

// getMirrored loads a snapshot from the Redis mirror into out.
func (cs *CacheService) getMirrored(key string, out interface{}) bool {
	if cs.redis == nil || cs.Mode() != CacheModeRedis {
		return false
	}

	ctx, cancel := context.WithTimeout(cs.redisCtx, 2*time.Second)
	defer cancel()

	raw, err := cs.redis.Get(ctx, mirrorKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.WithError(err).WithField("key", key).Warn("Redis mirror GET failed")
		}
		return false
	}

	if err := jsonAPI.Unmarshal(raw, out); err != nil {
		log.WithError(err).WithField("key", key).Warn("Redis mirror entry is unreadable")
		return false
	}
	return true
}

// ============================================
// Cache primitive
// ============================================

// GetCachedData returns the cached value for key while it is younger than
// the TTL. Otherwise it calls fetch and stores the result. When fetch fails
// the last known value is returned, however old; the error is only returned
// when nothing was ever cached for key. Concurrent misses on the same key
// share a single fetch, which runs detached from any one caller's context
// and is bounded by sharedFetchTimeout. Each caller still stops waiting
// when its own ctx is done.
func GetCachedData[T any](ctx context.Context, cs *CacheService, key string, fetch func(context.Context) (T, error)) (T, error) {
	if item, ok := cs.get(key); ok && cs.isValid(item) {
		if v, ok := item.Data.(T); ok {
			return v, nil
		}
	}

	ch := cs.flight.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()

		data, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		cs.set(key, data)
		return data, nil
	})

	var err error
	select {
	case res := <-ch:
		if res.Err == nil {
			return res.Val.(T), nil
		}
		err = res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}

	logger := log.WithError(err).WithField("key", key)

	if item, ok := cs.get(key); ok {
		if stale, ok := item.Data.(T); ok {
			logger.WithField("age", cs.now().Sub(item.Timestamp).String()).
				Warn("Fetch failed, serving stale cache entry")
			return stale, nil
		}
	}

	var mirrored T
	if cs.getMirrored(key, &mirrored) {
		logger.Warn("Fetch failed, serving stale entry from Redis mirror")
		return mirrored, nil
	}

	var zero T
	return zero, err
}

// Status reports the age and validity of every cached key
func (cs *CacheService) Status() map[string]models.CacheEntryStatus {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	now := cs.now()
	status := make(map[string]models.CacheEntryStatus, len(cs.entries))
	for key, item := range cs.entries {
		age := now.Sub(item.Timestamp)
		status[key] = models.CacheEntryStatus{
			Age:   age.Milliseconds(),
			Valid: age < cs.ttl,
		}
	}
	return status
}

// Clear drops every entry, including mirrored ones
func (cs *CacheService) Clear() {
	cs.mu.Lock()
	cs.entries = make(map[string]*CacheItem)
	cs.mu.Unlock()

	if cs.redis != nil && cs.Mode() == CacheModeRedis {
		ctx, cancel := context.WithTimeout(cs.redisCtx, 5*time.Second)
		defer cancel()

		deleted := 0
		iter := cs.redis.Scan(ctx, 0, mirrorKeyPrefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			if err := cs.redis.Del(ctx, iter.Val()).Err(); err == nil {
				deleted++
			}
		}
		if err := iter.Err(); err != nil {
			log.WithError(err).Warn("Redis mirror clear failed")
		}
		log.Infof("Redis mirror cleared (%d keys deleted)", deleted)
	}

	log.Info("Cache cleared")
}
