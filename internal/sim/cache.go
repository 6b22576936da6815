package sim

// CacheEntry is the resumption state of a mission's synthetic run.
type CacheEntry struct {
	Progress      float64 `json:"progress"`
	WaypointIndex int     `json:"waypointIndex"`
}

// Cache stores the last known progress per mission. Entries never expire;
// they are removed by Clear or when a run completes naturally.
type Cache interface {
	Get(missionID string) (CacheEntry, bool)
	Set(missionID string, e CacheEntry)
	Clear(missionID string)
}

// MemoryCache is a map-backed Cache owned by the feed's event loop.
type MemoryCache struct {
	entries map[string]CacheEntry
}

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]CacheEntry)}
}

// Get implements Cache.
func (c *MemoryCache) Get(missionID string) (CacheEntry, bool) {
	e, ok := c.entries[missionID]
	return e, ok
}

// Set implements Cache.
func (c *MemoryCache) Set(missionID string, e CacheEntry) {
	c.entries[missionID] = e
}

// Clear implements Cache.
func (c *MemoryCache) Clear(missionID string) {
	delete(c.entries, missionID)
}

// Len reports the number of cached missions.
func (c *MemoryCache) Len() int { return len(c.entries) }
