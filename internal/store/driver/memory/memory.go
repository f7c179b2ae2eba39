package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/songzhibin97/qwork/pkg/store"
)

// entry represents a single entry in the memory store
type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore implements store.AtomicStore using in-memory storage
type MemoryStore struct {
	mu        sync.Mutex
	data      map[string]*entry
	keyPrefix string
	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closed    bool
}

// New creates a new in-memory store and starts its cleanup goroutine
func New(config *store.Config) *MemoryStore {
	if config == nil {
		config = store.DefaultConfig()
	}
	interval := config.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ms := &MemoryStore{
		data:      make(map[string]*entry),
		keyPrefix: config.KeyPrefix,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
	ms.wg.Add(1)
	go ms.cleanupExpired(interval)
	return ms
}

func (ms *MemoryStore) getKey(key string) string {
	return ms.keyPrefix + key
}

// lookup returns the live entry for key, dropping it when expired.
// The caller holds ms.mu.
func (ms *MemoryStore) lookup(key string) (*entry, bool) {
	e, ok := ms.data[key]
	if !ok {
		return nil, false
	}
	if e.expired(ms.now()) {
		delete(ms.data, key)
		return nil, false
	}
	return e, true
}

// IncrBy atomically increments the value of a key by the given amount
func (ms *MemoryStore) IncrBy(ctx context.Context, key string, value int64) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	fullKey := ms.getKey(key)
	e, ok := ms.lookup(fullKey)
	if !ok {
		ms.data[fullKey] = &entry{value: []byte(strconv.FormatInt(value, 10))}
		return value, nil
	}

	current, err := strconv.ParseInt(string(e.value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot increment non-numeric value of key %s", key)
	}
	current += value
	e.value = []byte(strconv.FormatInt(current, 10))
	return current, nil
}

// Expire sets the TTL of an existing key
func (ms *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if e, ok := ms.lookup(ms.getKey(key)); ok {
		if ttl > 0 {
			e.expiresAt = ms.now().Add(ttl)
		} else {
			e.expiresAt = time.Time{}
		}
	}
	return nil
}

// Set stores a value by key with optional TTL
func (ms *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e := &entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = ms.now().Add(ttl)
	}
	ms.data[ms.getKey(key)] = e
	return nil
}

// Get retrieves a copy of the value stored at key
func (ms *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.lookup(ms.getKey(key))
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), e.value...), nil
}

// Delete removes a key from storage
func (ms *MemoryStore) Delete(ctx context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.data, ms.getKey(key))
	return nil
}

// Exists checks if a key exists in storage
func (ms *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	_, ok := ms.lookup(ms.getKey(key))
	return ok, nil
}

// TTL returns the remaining time to live for a key
func (ms *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.lookup(ms.getKey(key))
	if !ok {
		return store.Missing, nil
	}
	if e.expiresAt.IsZero() {
		return store.NoExpiry, nil
	}
	return e.expiresAt.Sub(ms.now()), nil
}

// Close stops the cleanup goroutine and drops every key
func (ms *MemoryStore) Close() error {
	ms.mu.Lock()
	if ms.closed {
		ms.mu.Unlock()
		return nil
	}
	ms.closed = true
	close(ms.stopCh)
	ms.mu.Unlock()

	ms.wg.Wait()

	ms.mu.Lock()
	ms.data = make(map[string]*entry)
	ms.mu.Unlock()
	return nil
}

// Health returns the health status of the store
func (ms *MemoryStore) Health(ctx context.Context) store.HealthStatus {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	status, message := "healthy", "Memory store is operational"
	if ms.closed {
		status, message = "unhealthy", "Memory store is closed"
	}
	return store.HealthStatus{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"type":       "memory",
			"keys_count": len(ms.data),
		},
	}
}

func (ms *MemoryStore) cleanupExpired(interval time.Duration) {
	defer ms.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ms.performCleanup()
		case <-ms.stopCh:
			return
		}
	}
}

func (ms *MemoryStore) performCleanup() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	for key, e := range ms.data {
		if e.expired(now) {
			delete(ms.data, key)
		}
	}
}
