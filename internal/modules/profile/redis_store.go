// README: Redis-backed profile store: GEO set for positions, hashes for account fields.
package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"plow/internal/types"
)

const (
	locationsKey       = "plow:locations"
	fieldPayout        = "payout_destination"
	fieldDeviceToken   = "device_token"
	profileKeyTemplate = "plow:profile:%s"
)

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func profileKey(id types.ID) string {
	return fmt.Sprintf(profileKeyTemplate, id)
}

func (s *RedisStore) Location(ctx context.Context, userID types.ID) (*types.Point, error) {
	res, err := s.rdb.GeoPos(ctx, locationsKey, string(userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(res) == 0 || res[0] == nil {
		return nil, nil
	}
	return &types.Point{Lat: res[0].Latitude, Lng: res[0].Longitude}, nil
}

func (s *RedisStore) SetLocation(ctx context.Context, userID types.ID, p types.Point) error {
	if !ValidPoint(p) {
		return ErrInvalidLocation
	}
	return s.rdb.GeoAdd(ctx, locationsKey, &redis.GeoLocation{
		Name:      string(userID),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (s *RedisStore) PayoutDestination(ctx context.Context, operatorID types.ID) (string, error) {
	return s.field(ctx, operatorID, fieldPayout)
}

func (s *RedisStore) SetPayoutDestination(ctx context.Context, operatorID types.ID, dest string) error {
	return s.rdb.HSet(ctx, profileKey(operatorID), fieldPayout, dest).Err()
}

func (s *RedisStore) DeviceToken(ctx context.Context, userID types.ID) (string, error) {
	return s.field(ctx, userID, fieldDeviceToken)
}

func (s *RedisStore) SetDeviceToken(ctx context.Context, userID types.ID, token string) error {
	return s.rdb.HSet(ctx, profileKey(userID), fieldDeviceToken, token).Err()
}

func (s *RedisStore) field(ctx context.Context, id types.ID, field string) (string, error) {
	v, err := s.rdb.HGet(ctx, profileKey(id), field).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}
