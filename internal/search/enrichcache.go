package search

import (
	"sync"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

const enrichCacheSize = 500

// enrichCache remembers card-enriched tenders for the life of the process so
// that overlapping searches and poll cycles do not refetch the same card.
// Bounded FIFO: the oldest entry is dropped when full.
type enrichCache struct {
	mu      sync.Mutex
	entries map[string]domain.Tender
	order   []string
	max     int
}

func newEnrichCache(max int) *enrichCache {
	return &enrichCache{
		entries: make(map[string]domain.Tender, max),
		max:     max,
	}
}

func (c *enrichCache) get(number string) (domain.Tender, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.entries[number]
	return t, ok
}

func (c *enrichCache) put(number string, t domain.Tender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[number]; exists {
		c.entries[number] = t
		return
	}
	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[number] = t
	c.order = append(c.order, number)
}

func (c *enrichCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
