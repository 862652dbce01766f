// README: Job board backed by a Redis GEO set.
package matching

import (
	"context"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"plow/internal/modules/location"
	"plow/internal/types"
)

const openJobsGeoKey = "matching:open_jobs"

type RedisBoard struct {
	redis *redis.Client
}

func NewRedisBoard(redis *redis.Client) *RedisBoard {
	return &RedisBoard{redis: redis}
}

func (s *RedisBoard) Publish(ctx context.Context, jobID types.ID, site types.Point) error {
	return s.redis.GeoAdd(ctx, openJobsGeoKey, &redis.GeoLocation{
		Name:      string(jobID),
		Longitude: site.Lng,
		Latitude:  site.Lat,
	}).Err()
}

func (s *RedisBoard) Withdraw(ctx context.Context, jobID types.ID) error {
	return s.redis.ZRem(ctx, openJobsGeoKey, string(jobID)).Err()
}

func (s *RedisBoard) Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]Hit, error) {
	radiusKm, limit = Clamp(radiusKm, limit)
	results, err := s.redis.GeoSearchLocation(ctx, openJobsGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{JobID: types.ID(r.Name), DistanceKm: r.Dist}
	}
	return hits, nil
}

// MemBoard is an in-process board.
type MemBoard struct {
	mu    sync.RWMutex
	sites map[types.ID]types.Point
}

func NewMemBoard() *MemBoard {
	return &MemBoard{sites: make(map[types.ID]types.Point)}
}

func (b *MemBoard) Publish(_ context.Context, jobID types.ID, site types.Point) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sites[jobID] = site
	return nil
}

func (b *MemBoard) Withdraw(_ context.Context, jobID types.ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sites, jobID)
	return nil
}

func (b *MemBoard) Nearby(_ context.Context, p types.Point, radiusKm float64, limit int) ([]Hit, error) {
	radiusKm, limit = Clamp(radiusKm, limit)
	b.mu.RLock()
	defer b.mu.RUnlock()
	var hits []Hit
	for id, site := range b.sites {
		if d := location.DistanceKm(p, site); d <= radiusKm {
			hits = append(hits, Hit{JobID: id, DistanceKm: d})
		}
	}
	sort.Slice(hits, func(i, k int) bool {
		if hits[i].DistanceKm == hits[k].DistanceKm {
			return hits[i].JobID < hits[k].JobID
		}
		return hits[i].DistanceKm < hits[k].DistanceKm
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
