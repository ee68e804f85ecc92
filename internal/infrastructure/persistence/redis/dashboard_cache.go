package redis

import (
	"context"
	"fmt"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
)

// DashboardCache implements application.CountsCache on top of Cache.
type DashboardCache struct {
	cache *Cache
}

// NewDashboardCache creates a new DashboardCache.
func NewDashboardCache(cache *Cache) *DashboardCache {
	return &DashboardCache{cache: cache}
}

// GetCounts returns cached counts or ErrCacheMiss.
func (d *DashboardCache) GetCounts(ctx context.Context, artisanID string) (map[application.Status]int, error) {
	var raw map[string]int
	if err := d.cache.getJSON(ctx, DashboardKey(artisanID), &raw); err != nil {
		return nil, err
	}
	return decodeCounts(raw)
}

// SetCounts stores counts with TTLDashboardCounts.
func (d *DashboardCache) SetCounts(ctx context.Context, artisanID string, counts map[application.Status]int) error {
	return d.cache.setJSON(ctx, DashboardKey(artisanID), encodeCounts(counts), TTLDashboardCounts)
}

// InvalidateCounts drops the artisan's cached counts.
func (d *DashboardCache) InvalidateCounts(ctx context.Context, artisanID string) error {
	return d.cache.client.Del(ctx, DashboardKey(artisanID)).Err()
}

func encodeCounts(counts map[application.Status]int) map[string]int {
	out := make(map[string]int, len(application.AllStatuses()))
	for _, s := range application.AllStatuses() {
		out[string(s)] = counts[s]
	}
	return out
}

func decodeCounts(raw map[string]int) (map[application.Status]int, error) {
	out := make(map[application.Status]int, len(raw))
	for k, v := range raw {
		s := application.Status(k)
		if !s.IsValid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrCacheSerialization, k)
		}
		out[s] = v
	}
	return out, nil
}
