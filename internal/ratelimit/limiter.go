// Package ratelimit limits requests per client with fixed windows counted
// in a store.AtomicStore, so limits hold across replicas sharing Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/songzhibin97/qwork/pkg/log"
	"github.com/songzhibin97/qwork/pkg/store"
)

// Config represents rate limiter configuration
type Config struct {
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	WindowSize  time.Duration `yaml:"window_size" json:"window_size"`
	KeyPrefix   string        `yaml:"key_prefix" json:"key_prefix"`
}

// DefaultConfig returns a default rate limiter configuration
func DefaultConfig() *Config {
	return &Config{
		MaxRequests: 20,
		WindowSize:  time.Minute,
		KeyPrefix:   "ratelimit:",
	}
}

// Result is the outcome of one rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Limiter implements fixed window rate limiting
type Limiter struct {
	store  store.AtomicStore
	config *Config
	logger log.Logger
	now    func() time.Time
}

// NewLimiter creates a limiter counting in s
func NewLimiter(s store.AtomicStore, config *Config, logger log.Logger) *Limiter {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Limiter{
		store:  s,
		config: config,
		logger: logger.With(log.Component("ratelimit")),
		now:    time.Now,
	}
}

// Allow counts one request of identifier in the current window
func (l *Limiter) Allow(ctx context.Context, identifier string) *Result {
	now := l.now()
	windowStart := now.Truncate(l.config.WindowSize)
	reset := windowStart.Add(l.config.WindowSize)
	key := fmt.Sprintf("%s%s:%d", l.config.KeyPrefix, identifier, windowStart.Unix())

	result := &Result{Allowed: true, Limit: l.config.MaxRequests, Remaining: l.config.MaxRequests, ResetTime: reset}

	count, err := l.store.IncrBy(ctx, key, 1)
	if err != nil {
		// Fail open
		l.logger.Warn("Rate limit counter unavailable", log.String("identifier", identifier), log.Error(err))
		return result
	}
	if count == 1 {
		// The key outlives its window slightly so late increments still expire
		if err := l.store.Expire(ctx, key, l.config.WindowSize+time.Second); err != nil {
			l.logger.Warn("Failed to set rate limit window expiry", log.Error(err))
		}
	}

	remaining := l.config.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	result.Remaining = remaining
	if count > int64(l.config.MaxRequests) {
		result.Allowed = false
		result.RetryAfter = reset.Sub(now)
	}
	return result
}
