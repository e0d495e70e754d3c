// Package cache provides the dashboard response cache: an in-process
// ristretto tier in front of an optional Redis tier.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trading-journal/config"
	"trading-journal/internal/logging"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("redis unavailable (circuit breaker open)")

// CacheService wraps a Redis client with graceful degradation. After
// maxFailures consecutive failures the breaker opens and every call fails
// fast with ErrUnavailable until a background ping succeeds.
type CacheService struct {
	client       *redis.Client
	config       config.RedisConfig
	logger       *logging.Logger
	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	// Circuit breaker settings
	maxFailures   int
	checkInterval time.Duration
}

// Key layout
const (
	PrefixDashboard      = "dashboard:%s:%s"   // user id, query key
	PrefixDashboardIndex = "dashboard:%s:keys" // set of a user's dashboard keys
)

// NewCacheService connects to Redis. A failed initial ping is not an error:
// the service starts degraded and recovers once Redis answers.
func NewCacheService(cfg config.RedisConfig) (*CacheService, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	cs := newCacheService(client, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		cs.logger.Warn("initial Redis connection failed, starting degraded", "error", err, "address", cfg.Address)
		return cs, nil
	}

	cs.recordSuccess()
	cs.logger.Info("Redis connected", "address", cfg.Address)
	return cs, nil
}

func newCacheService(client *redis.Client, cfg config.RedisConfig) *CacheService {
	return &CacheService{
		client:        client,
		config:        cfg,
		logger:        logging.WithComponent("cache"),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}
}

// IsHealthy returns whether Redis is currently available.
func (cs *CacheService) IsHealthy() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.healthy
}

func (cs *CacheService) recordFailure() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.failureCount++
	if cs.failureCount >= cs.maxFailures {
		if cs.healthy {
			cs.logger.Warn("circuit breaker open: Redis marked unhealthy", "failures", cs.failureCount)
		}
		cs.healthy = false
	}
}

func (cs *CacheService) recordSuccess() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.healthy && !cs.lastCheck.IsZero() {
		cs.logger.Info("circuit breaker closed: Redis recovered")
	}
	cs.healthy = true
	cs.failureCount = 0
	cs.lastCheck = time.Now()
}

// checkHealth pings Redis in the background when the breaker is open and
// the last check is older than checkInterval.
func (cs *CacheService) checkHealth() {
	cs.mu.Lock()
	shouldCheck := !cs.healthy && time.Since(cs.lastCheck) >= cs.checkInterval
	if shouldCheck {
		cs.lastCheck = time.Now()
	}
	cs.mu.Unlock()

	if !shouldCheck {
		return
	}

	go func() {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := cs.client.Ping(pingCtx).Err(); err == nil {
			cs.recordSuccess()
		}
	}()
}

func (cs *CacheService) ready() error {
	cs.checkHealth()
	if !cs.IsHealthy() {
		return ErrUnavailable
	}
	return nil
}

// Get returns the raw value at key. A miss returns redis.Nil.
func (cs *CacheService) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cs.ready(); err != nil {
		return nil, err
	}

	result, err := cs.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err // miss, not a failure
		}
		cs.recordFailure()
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	cs.recordSuccess()
	return result, nil
}

// SetIndexed stores value at key and adds key to the index set, so that
// DeleteIndexed can later drop every key of the index in one call.
func (cs *CacheService) SetIndexed(ctx context.Context, index, key string, value []byte, ttl time.Duration) error {
	if err := cs.ready(); err != nil {
		return err
	}

	pipe := cs.client.TxPipeline()
	pipe.Set(ctx, key, value, ttl)
	pipe.SAdd(ctx, index, key)
	pipe.Expire(ctx, index, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis set failed: %w", err)
	}

	cs.recordSuccess()
	return nil
}

// DeleteIndexed removes every key listed in index, then the index itself.
func (cs *CacheService) DeleteIndexed(ctx context.Context, index string) error {
	if err := cs.ready(); err != nil {
		return err
	}

	keys, err := cs.client.SMembers(ctx, index).Result()
	if err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis smembers failed: %w", err)
	}

	if err := cs.client.Del(ctx, append(keys, index)...).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis delete failed: %w", err)
	}

	cs.recordSuccess()
	return nil
}

// Close closes the Redis connection.
func (cs *CacheService) Close() error {
	if cs.client != nil {
		return cs.client.Close()
	}
	return nil
}

// Ping checks Redis connectivity and updates the breaker.
func (cs *CacheService) Ping(ctx context.Context) error {
	if err := cs.client.Ping(ctx).Err(); err != nil {
		cs.recordFailure()
		return err
	}
	cs.recordSuccess()
	return nil
}

// Stats returns cache statistics for monitoring.
type Stats struct {
	Healthy      bool   `json:"healthy"`
	FailureCount int    `json:"failure_count"`
	Address      string `json:"address"`
	PoolSize     int    `json:"pool_size"`
}

// GetStats returns current cache statistics.
func (cs *CacheService) GetStats() Stats {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	return Stats{
		Healthy:      cs.healthy,
		FailureCount: cs.failureCount,
		Address:      cs.config.Address,
		PoolSize:     cs.config.PoolSize,
	}
}

// DashboardKey is the Redis key of one cached dashboard.
func DashboardKey(userID, queryKey string) string {
	return fmt.Sprintf(PrefixDashboard, userID, queryKey)
}

// DashboardIndexKey is the Redis set holding a user's dashboard keys.
func DashboardIndexKey(userID string) string {
	return fmt.Sprintf(PrefixDashboardIndex, userID)
}
