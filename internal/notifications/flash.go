package notifications

import (
	"context"
	"sync"
	"time"
)

// FlashStore is the single-slot transient notification. A new message
// overwrites the slot; the slot clears itself after the configured TTL.
type FlashStore interface {
	Set(ctx context.Context, message string) error
	Peek(ctx context.Context) (string, bool, error)
	Clear(ctx context.Context) error
}

// MemoryFlash is the default in-process slot. Expiry is decided lazily on
// read so no timer goroutine is needed.
type MemoryFlash struct {
	mu       sync.Mutex
	message  string
	deadline time.Time
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryFlash builds a flash slot with the given auto-clear TTL.
func NewMemoryFlash(ttl time.Duration) *MemoryFlash {
	return &MemoryFlash{ttl: ttl, now: time.Now}
}

func (f *MemoryFlash) Set(ctx context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = message
	f.deadline = f.now().Add(f.ttl)
	return nil
}

func (f *MemoryFlash) Peek(ctx context.Context) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.message == "" || f.now().After(f.deadline) {
		f.message = ""
		return "", false, nil
	}
	return f.message, true, nil
}

func (f *MemoryFlash) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = ""
	return nil
}

type redisFlashClient interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	FlashKey(scope string) string
	IsMissing(err error) bool
}

// RedisFlash stores the slot in redis; the key TTL is the auto-clear.
type RedisFlash struct {
	client redisFlashClient
	ttl    time.Duration
}

// NewRedisFlash builds a redis-backed flash slot.
func NewRedisFlash(client redisFlashClient, ttl time.Duration) *RedisFlash {
	return &RedisFlash{client: client, ttl: ttl}
}

func (f *RedisFlash) Set(ctx context.Context, message string) error {
	return f.client.Set(ctx, f.client.FlashKey("current"), message, f.ttl)
}

func (f *RedisFlash) Peek(ctx context.Context) (string, bool, error) {
	value, err := f.client.Get(ctx, f.client.FlashKey("current"))
	if err != nil {
		if f.client.IsMissing(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (f *RedisFlash) Clear(ctx context.Context) error {
	return f.client.Del(ctx, f.client.FlashKey("current"))
}
