package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/songzhibin97/qwork/pkg/store"
)

// RedisStore implements store.AtomicStore using Redis
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	config    *store.Config
}

// New creates a new Redis store and checks the connection
func New(config *store.Config) (*RedisStore, error) {
	if config == nil {
		config = store.DefaultConfig()
	}
	if config.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.Database,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, config), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client redis.UniversalClient, config *store.Config) *RedisStore {
	if config == nil {
		config = store.DefaultConfig()
	}
	return &RedisStore{
		client:    client,
		keyPrefix: config.KeyPrefix,
		config:    config,
	}
}

func (rs *RedisStore) getKey(key string) string {
	return rs.keyPrefix + key
}

// IncrBy atomically increments the value of a key by the given amount
func (rs *RedisStore) IncrBy(ctx context.Context, key string, value int64) (int64, error) {
	result, err := rs.client.IncrBy(ctx, rs.getKey(key), value).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment key %s: %w", key, err)
	}
	return result, nil
}

// Expire sets the TTL of an existing key
func (rs *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	var err error
	if ttl > 0 {
		err = rs.client.Expire(ctx, rs.getKey(key), ttl).Err()
	} else {
		err = rs.client.Persist(ctx, rs.getKey(key)).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to set expiry of key %s: %w", key, err)
	}
	return nil
}

// Set stores a value by key with optional TTL
func (rs *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := rs.client.Set(ctx, rs.getKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Get retrieves a value by key
func (rs *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := rs.client.Get(ctx, rs.getKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return result, nil
}

// Delete removes a key from storage
func (rs *RedisStore) Delete(ctx context.Context, key string) error {
	if err := rs.client.Del(ctx, rs.getKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Exists checks if a key exists in storage
func (rs *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	result, err := rs.client.Exists(ctx, rs.getKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check existence of key %s: %w", key, err)
	}
	return result > 0, nil
}

// TTL returns the remaining time to live for a key
func (rs *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	result, err := rs.client.PTTL(ctx, rs.getKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get TTL for key %s: %w", key, err)
	}

	// go-redis reports -1 and -2 as raw durations
	switch {
	case result == -2 || result == -2*time.Millisecond:
		return store.Missing, nil
	case result == -1 || result == -1*time.Millisecond:
		return store.NoExpiry, nil
	}
	return result, nil
}

// Close closes the store connection and releases resources
func (rs *RedisStore) Close() error {
	if rs.client != nil {
		return rs.client.Close()
	}
	return nil
}

// Health returns the health status of the store
func (rs *RedisStore) Health(ctx context.Context) store.HealthStatus {
	health := store.HealthStatus{
		Status:    "healthy",
		Message:   "Redis store is operational",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"type":     "redis",
			"address":  rs.config.Address,
			"database": rs.config.Database,
		},
	}

	if err := rs.client.Ping(ctx).Err(); err != nil {
		health.Status = "unhealthy"
		health.Message = fmt.Sprintf("Redis connection failed: %v", err)
		health.Details["error"] = err.Error()
		return health
	}

	if info, err := rs.client.Info(ctx, "server").Result(); err == nil {
		server := parseRedisInfo(info)
		health.Details["redis_version"] = server["redis_version"]
		health.Details["uptime_in_seconds"] = server["uptime_in_seconds"]
	}
	return health
}

// parseRedisInfo parses Redis INFO output into a map
func parseRedisInfo(info string) map[string]string {
	result := make(map[string]string)
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if key, value, ok := strings.Cut(line, ":"); ok {
			result[key] = value
		}
	}
	return result
}
