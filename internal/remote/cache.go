package remote

import (
	"sync"
	"time"
)

// ListTTL is how long a listing is served from cache.
const ListTTL = 60 * time.Second

// listCache holds the last listing and when it was taken. Every
// invalidation bumps epoch so a listing that started before a mutation
// cannot repopulate the cache after it.
type listCache struct {
	mu    sync.Mutex
	now   func() time.Time
	ttl   time.Duration
	at    time.Time
	data  []Backup
	valid bool
	epoch uint64
}

func newListCache(now func() time.Time, ttl time.Duration) *listCache {
	if now == nil {
		now = time.Now
	}
	return &listCache{now: now, ttl: ttl}
}

// get returns the cached listing if fresh, otherwise the epoch to pass to
// put once a new listing is fetched.
func (c *listCache) get() ([]Backup, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid || c.now().Sub(c.at) >= c.ttl {
		return nil, c.epoch, false
	}
	return c.data, c.epoch, true
}

func (c *listCache) put(epoch uint64, data []Backup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return
	}
	c.data = data
	c.at = c.now()
	c.valid = true
}

func (c *listCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
	c.valid = false
	c.epoch++
}
