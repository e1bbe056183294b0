package audio

// MaxAudioHistory bounds how many resolved audio resources one session keeps.
const MaxAudioHistory = 10

// resourceCache is a bounded FIFO mapping from content-derived keys to hosted
// resource URLs. The cache is the sole owner of its resources: eviction is
// the only path that releases them.
type resourceCache struct {
	capacity int
	entries  map[string]string
	order    []string
	onEvict  func(key, url string)
}

func newResourceCache(capacity int, onEvict func(key, url string)) *resourceCache {
	if capacity <= 0 {
		capacity = MaxAudioHistory
	}
	return &resourceCache{
		capacity: capacity,
		entries:  make(map[string]string, capacity),
		onEvict:  onEvict,
	}
}

func (c *resourceCache) get(key string) (string, bool) {
	url, ok := c.entries[key]
	return url, ok
}

// put inserts a freshly resolved resource, evicting the oldest entry once the
// capacity is exceeded. Re-inserting an existing key releases the resource it
// previously held.
func (c *resourceCache) put(key, url string) {
	if old, ok := c.entries[key]; ok {
		if old != url && c.onEvict != nil {
			c.onEvict(key, old)
		}
		c.entries[key] = url
		return
	}

	c.entries[key] = url
	c.order = append(c.order, key)
	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		evicted := c.entries[oldest]
		delete(c.entries, oldest)
		if c.onEvict != nil {
			c.onEvict(oldest, evicted)
		}
	}
}

func (c *resourceCache) len() int { return len(c.entries) }

// drain evicts everything, releasing every held resource.
func (c *resourceCache) drain() {
	for _, key := range c.order {
		if url, ok := c.entries[key]; ok {
			delete(c.entries, key)
			if c.onEvict != nil {
				c.onEvict(key, url)
			}
		}
	}
	c.order = c.order[:0]
}
