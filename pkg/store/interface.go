// Package store defines the atomic key-value store shared by the refresh
// token denylist and the rate limiter.
package store

import (
	"context"
	"time"
)

// AtomicStore defines atomic counter and TTL-bound key operations.
// Every implementation is safe for concurrent use.
type AtomicStore interface {
	// IncrBy atomically increments the value of a key by the given amount.
	// A missing key starts at zero. The new value is returned.
	IncrBy(ctx context.Context, key string, value int64) (int64, error)

	// Expire sets the TTL of an existing key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Set stores a value by key. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value by key. A missing key returns nil, nil.
	Get(ctx context.Context, key string) ([]byte, error)

	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// TTL returns the remaining time to live for a key.
	// It returns NoExpiry for keys without TTL and Missing for absent keys.
	TTL(ctx context.Context, key string) (time.Duration, error)

	Close() error
	Health(ctx context.Context) HealthStatus
}

// Sentinel TTL values
const (
	NoExpiry time.Duration = -1 * time.Second
	Missing  time.Duration = -2 * time.Second
)

// HealthStatus represents the health status of a store
type HealthStatus struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Config holds the connection settings of a store driver
type Config struct {
	// Type specifies the store type (memory, redis)
	Type         string        `yaml:"type" json:"type"`
	Address      string        `yaml:"address" json:"address"`
	Database     int           `yaml:"database" json:"database"`
	Password     string        `yaml:"password" json:"password"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// KeyPrefix is prepended to every key
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	// CleanupInterval is how often the memory driver drops expired keys
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

// DefaultConfig returns a default store configuration
func DefaultConfig() *Config {
	return &Config{
		Type:            "memory",
		Address:         "localhost:6379",
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		CleanupInterval: time.Minute,
	}
}
