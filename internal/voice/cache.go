package voice

import (
	"strings"
	"sync"
)

// speakCache is the bounded cache of synthesized audio blobs. Eviction is
// FIFO by insertion order, not LRU: a Get does not refresh an entry's
// position. This matches long-standing product behaviour and keeps repeat
// greetings cheap without tracking access recency.
type speakCache struct {
	mu    sync.Mutex
	max   int
	data  map[string][]byte
	order []string // insertion order, oldest first
}

// newSpeakCache creates a cache bounded to max entries (min 1).
func newSpeakCache(max int) *speakCache {
	if max < 1 {
		max = 1
	}
	return &speakCache{
		max:  max,
		data: make(map[string][]byte, max),
	}
}

// cacheKey builds the lookup key for one synthesis request.
func cacheKey(text, language, characterID, expression string) string {
	return strings.Join([]string{text, language, characterID, expression}, "|")
}

// get returns the cached blob for key, if present.
func (c *speakCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	blob, ok := c.data[key]
	return blob, ok
}

// put stores blob under key, evicting the oldest inserted entry when full.
// Re-inserting an existing key overwrites the value without changing its
// position in the eviction order.
func (c *speakCache) put(key string, blob []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; exists {
		c.data[key] = blob
		return
	}
	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.data, oldest)
	}
	c.data[key] = blob
	c.order = append(c.order, key)
}

// len returns the current entry count.
func (c *speakCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
