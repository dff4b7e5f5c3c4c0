package diagram

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCacheMiss = errors.New("diagram cache miss")

type memEntry struct {
	url string
	at  time.Time
}

// MemoryCache keeps URLs for the lifetime of the process.
type MemoryCache struct {
	m   sync.Map // key -> memEntry
	now func() time.Time
}

func NewMemoryCache() *MemoryCache { return &MemoryCache{now: time.Now} }

func (c *MemoryCache) Get(_ context.Context, key string, maxAge time.Duration) (string, error) {
	v, ok := c.m.Load(key)
	if !ok {
		return "", ErrCacheMiss
	}
	e := v.(memEntry)
	if maxAge > 0 && c.now().Sub(e.at) > maxAge {
		c.m.Delete(key)
		return "", ErrCacheMiss
	}
	return e.url, nil
}

func (c *MemoryCache) Put(_ context.Context, key, url string) error {
	c.m.Store(key, memEntry{url: url, at: c.now()})
	return nil
}
