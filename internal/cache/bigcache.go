package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
)

// BigCacheConfig sizes the in-process claim store.
type BigCacheConfig struct {
	Shards     int
	LifeWindow time.Duration
	MaxSizeMB  int
}

// BigCache implements Claims on bigcache. Entries carry their own expiry so
// claim TTLs shorter than LifeWindow hold.
type BigCache struct {
	mu    sync.Mutex
	cache *bigcache.BigCache
	now   func() time.Time
}

var _ Claims = (*BigCache)(nil)

// NewBigCache creates the store. LifeWindow should be at least the longest
// claim TTL in use.
func NewBigCache(ctx context.Context, cfg BigCacheConfig) (*BigCache, error) {
	if cfg.Shards <= 0 {
		cfg.Shards = 64
	}
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = 10 * time.Minute
	}
	conf := bigcache.DefaultConfig(cfg.LifeWindow)
	conf.Shards = cfg.Shards
	conf.CleanWindow = cfg.LifeWindow / 2
	conf.HardMaxCacheSize = cfg.MaxSizeMB
	conf.Verbose = false

	bc, err := bigcache.New(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("create bigcache: %w", err)
	}
	return &BigCache{cache: bc, now: time.Now}, nil
}

// Claim implements Claims. A non-positive ttl holds until the entry ages out
// of the life window.
func (c *BigCache) Claim(_ context.Context, key, holder string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held, err := c.lookup(key); err != nil {
		return false, err
	} else if held {
		return false, nil
	}
	var expiry int64
	if ttl > 0 {
		expiry = c.now().Add(ttl).UnixNano()
	}
	entry := make([]byte, 8+len(holder))
	binary.BigEndian.PutUint64(entry, uint64(expiry))
	copy(entry[8:], holder)
	if err := c.cache.Set(key, entry); err != nil {
		return false, fmt.Errorf("store claim %s: %w", key, err)
	}
	return true, nil
}

// Holder implements Claims.
func (c *BigCache) Holder(_ context.Context, key string) (string, bool, error) {
	return c.lookup(key)
}

// Release implements Claims.
func (c *BigCache) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.cache.Delete(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil
	}
	return err
}

// Close stops the cleanup goroutine.
func (c *BigCache) Close() error {
	return c.cache.Close()
}

// Len returns the number of entries, including expired claims not yet cleaned.
func (c *BigCache) Len() int {
	return c.cache.Len()
}

func (c *BigCache) lookup(key string) (string, bool, error) {
	raw, err := c.cache.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if len(raw) < 8 {
		return "", false, nil
	}
	expiry := int64(binary.BigEndian.Uint64(raw))
	if expiry != 0 && c.now().UnixNano() >= expiry {
		return "", false, nil
	}
	return string(raw[8:]), true, nil
}
