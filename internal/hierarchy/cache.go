package hierarchy

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CachedDirectory memoizes directory lookups for a short validity window.
// Errors are never cached.
type CachedDirectory struct {
	dir           Directory
	cacheValidity time.Duration
	now           func() time.Time

	mu      sync.Mutex
	entries map[string]cachedLookup
}

type cachedLookup struct {
	ids      []string
	site     string
	loadedAt time.Time
}

// NewCachedDirectory wraps dir with a cache valid for ttl
func NewCachedDirectory(dir Directory, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		dir:           dir,
		cacheValidity: ttl,
		now:           time.Now,
		entries:       make(map[string]cachedLookup),
	}
}

func (c *CachedDirectory) SensorIDsForSite(ctx context.Context, id string) ([]string, error) {
	return c.ids(ctx, "site_sensors", id, c.dir.SensorIDsForSite)
}

func (c *CachedDirectory) SensorIDsForBuilding(ctx context.Context, id string) ([]string, error) {
	return c.ids(ctx, "building_sensors", id, c.dir.SensorIDsForBuilding)
}

func (c *CachedDirectory) SensorIDsForFloor(ctx context.Context, id string) ([]string, error) {
	return c.ids(ctx, "floor_sensors", id, c.dir.SensorIDsForFloor)
}

func (c *CachedDirectory) SensorIDsForRoom(ctx context.Context, id string) ([]string, error) {
	return c.ids(ctx, "room_sensors", id, c.dir.SensorIDsForRoom)
}

func (c *CachedDirectory) BuildingIDsForSite(ctx context.Context, siteID string) ([]string, error) {
	return c.ids(ctx, "site_buildings", siteID, c.dir.BuildingIDsForSite)
}

func (c *CachedDirectory) SiteOfBuilding(ctx context.Context, buildingID string) (string, error) {
	key := "building_site:" + buildingID
	if e, ok := c.lookup(key); ok {
		return e.site, nil
	}

	site, err := c.dir.SiteOfBuilding(ctx, buildingID)
	if err != nil {
		return "", err
	}
	c.store(key, cachedLookup{site: site})
	return site, nil
}

func (c *CachedDirectory) ids(ctx context.Context, prefix, id string, load func(context.Context, string) ([]string, error)) ([]string, error) {
	key := fmt.Sprintf("%s:%s", prefix, id)
	if e, ok := c.lookup(key); ok {
		return append([]string(nil), e.ids...), nil
	}

	ids, err := load(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(key, cachedLookup{ids: append([]string(nil), ids...)})
	return ids, nil
}

func (c *CachedDirectory) lookup(key string) (cachedLookup, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return cachedLookup{}, false
	}
	if c.expired(e, c.now()) {
		delete(c.entries, key)
		return cachedLookup{}, false
	}
	return e, true
}

// store saves e and evicts every other expired entry
func (c *CachedDirectory) store(key string, e cachedLookup) {
	now := c.now()
	e.loadedAt = now

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, old := range c.entries {
		if c.expired(old, now) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = e
}

func (c *CachedDirectory) expired(e cachedLookup, now time.Time) bool {
	return now.Sub(e.loadedAt) >= c.cacheValidity
}

// Len returns the number of cached lookups
func (c *CachedDirectory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
