package traffic

import "sync"

// Cache holds one computed Summary per connection stable ID. Entries are
// replaced when a caller asks for fresh analysis and dropped when the owning
// page goes away.
type Cache struct {
	mu        sync.RWMutex
	summaries map[int64]Summary
}

func NewCache() *Cache {
	return &Cache{summaries: make(map[int64]Summary)}
}

func (c *Cache) Put(connectionID int64, s Summary) {
	c.mu.Lock()
	c.summaries[connectionID] = s
	c.mu.Unlock()
}

func (c *Cache) Get(connectionID int64) (Summary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.summaries[connectionID]
	return s, ok
}

func (c *Cache) Delete(connectionID int64) {
	c.mu.Lock()
	delete(c.summaries, connectionID)
	c.mu.Unlock()
}

func (c *Cache) Clear() {
	c.mu.Lock()
	c.summaries = make(map[int64]Summary)
	c.mu.Unlock()
}
