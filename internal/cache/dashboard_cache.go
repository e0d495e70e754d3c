package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/redis/go-redis/v9"

	"trading-journal/config"
	"trading-journal/internal/logging"
)

// DashboardCache stores encoded dashboard responses per user.
//
// Reads try the local ristretto tier first, then Redis; a Redis hit is
// copied into the local tier. Invalidation bumps a per-user generation that
// is part of every local key, so stale local entries become unreachable
// immediately and expire on their own. Other instances only see the Redis
// delete, so their local tier may serve a stale entry for up to TTL.
type DashboardCache struct {
	local  *ristretto.Cache
	remote *CacheService
	ttl    time.Duration
	logger *logging.Logger

	mu          sync.Mutex
	generations map[string]uint64
}

// NewDashboardCache creates the cache. remote may be nil for a local-only
// cache.
func NewDashboardCache(cfg config.CacheConfig, remote *CacheService) (*DashboardCache, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	maxMB := cfg.LocalMaxMB
	if maxMB <= 0 {
		maxMB = 64
	}

	local, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxMB << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create local cache: %w", err)
	}

	return &DashboardCache{
		local:       local,
		remote:      remote,
		ttl:         ttl,
		logger:      logging.WithComponent("dashboard-cache"),
		generations: make(map[string]uint64),
	}, nil
}

func (c *DashboardCache) generation(userID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID]
}

func localKey(userID string, gen uint64, key string) string {
	return userID + "#" + strconv.FormatUint(gen, 10) + "|" + key
}

// Get returns the cached bytes for userID's query key along with the
// user's current generation. Callers that build the value after a miss pass
// that generation back to Set.
func (c *DashboardCache) Get(ctx context.Context, userID, key string) ([]byte, uint64, bool) {
	gen := c.generation(userID)
	lk := localKey(userID, gen, key)
	if v, ok := c.local.Get(lk); ok {
		if data, ok := v.([]byte); ok {
			return data, gen, true
		}
	}

	if c.remote == nil {
		return nil, gen, false
	}
	data, err := c.remote.Get(ctx, DashboardKey(userID, key))
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, ErrUnavailable) {
			c.logger.Warn("redis read failed", "error", err, "user_id", userID)
		}
		return nil, gen, false
	}
	if c.generation(userID) != gen {
		// invalidated while reading; the remote value may predate the write
		return nil, gen, false
	}
	c.local.SetWithTTL(lk, data, int64(len(data)), c.ttl)
	return data, gen, true
}

// Set stores data in both tiers if userID has not been invalidated since
// gen was read. A stale write lands on an unreachable local key and is not
// sent to Redis. Failures are logged and swallowed.
func (c *DashboardCache) Set(ctx context.Context, userID, key string, gen uint64, data []byte) {
	if c.generation(userID) != gen {
		c.logger.Debug("dropping dashboard built before invalidation", "user_id", userID)
		return
	}
	c.local.SetWithTTL(localKey(userID, gen, key), data, int64(len(data)), c.ttl)

	if c.remote == nil {
		return
	}
	if err := c.remote.SetIndexed(ctx, DashboardIndexKey(userID), DashboardKey(userID, key), data, c.ttl); err != nil {
		if !errors.Is(err, ErrUnavailable) {
			c.logger.Warn("redis write failed", "error", err, "user_id", userID)
		}
		return
	}
	if c.generation(userID) != gen {
		// an invalidation ran between the check and the write
		if err := c.remote.DeleteIndexed(ctx, DashboardIndexKey(userID)); err != nil && !errors.Is(err, ErrUnavailable) {
			c.logger.Warn("redis invalidation failed", "error", err, "user_id", userID)
		}
	}
}

// Invalidate drops every cached dashboard of userID.
func (c *DashboardCache) Invalidate(ctx context.Context, userID string) {
	c.mu.Lock()
	c.generations[userID]++
	c.mu.Unlock()

	if c.remote == nil {
		return
	}
	if err := c.remote.DeleteIndexed(ctx, DashboardIndexKey(userID)); err != nil && !errors.Is(err, ErrUnavailable) {
		c.logger.Warn("redis invalidation failed", "error", err, "user_id", userID)
	}
}

// Healthy reports the Redis tier's breaker state. A local-only cache is
// always healthy.
func (c *DashboardCache) Healthy() bool {
	return c.remote == nil || c.remote.IsHealthy()
}

// Wait blocks until buffered local writes are applied.
func (c *DashboardCache) Wait() {
	c.local.Wait()
}

// Close releases the local tier and the Redis connection.
func (c *DashboardCache) Close() error {
	c.local.Close()
	if c.remote != nil {
		return c.remote.Close()
	}
	return nil
}
