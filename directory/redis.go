package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore mirrors vendor records and keeps a GEO set of vendors that
// are currently available for offers.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func metaKey(vendorID int64) string {
	return fmt.Sprintf("truckdispatch:vendor:%d:meta", vendorID)
}

const (
	allVendorsKey = "truckdispatch:vendors"
	availableGeo  = "truckdispatch:vendors:available"
)

// PutVendor stores the vendor meta and adds or removes it from the
// available GEO set depending on its availability.
func (r *RedisStore) PutVendor(ctx context.Context, meta *VendorMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	member := strconv.FormatInt(meta.ID, 10)
	pipe := r.client.Pipeline()
	pipe.Set(ctx, metaKey(meta.ID), data, 0)
	pipe.SAdd(ctx, allVendorsKey, meta.ID)
	if meta.Availability == In {
		pipe.GeoAdd(ctx, availableGeo, &redis.GeoLocation{
			Name:      member,
			Longitude: meta.Lng,
			Latitude:  meta.Lat,
		})
	} else {
		pipe.ZRem(ctx, availableGeo, member)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetVendor(ctx context.Context, vendorID int64) (*VendorMeta, error) {
	data, err := r.client.Get(ctx, metaKey(vendorID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta VendorMeta
	return &meta, json.Unmarshal(data, &meta)
}

// SetAvailability patches only the availability of a mirrored vendor.
func (r *RedisStore) SetAvailability(ctx context.Context, vendorID int64, availability string) error {
	meta, err := r.GetVendor(ctx, vendorID)
	if err != nil {
		return err
	}
	if meta == nil {
		return nil
	}
	meta.Availability = availability
	return r.PutVendor(ctx, meta)
}

// NearbyAvailable returns available vendor IDs within radiusKm, nearest
// first, with their distance.
func (r *RedisStore) NearbyAvailable(ctx context.Context, lat, lng, radiusKm float64) ([]redis.GeoLocation, error) {
	return r.client.GeoSearchLocation(ctx, availableGeo, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lng,
			Latitude:   lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithDist: true,
	}).Result()
}

func (r *RedisStore) GetAllVendorIDs(ctx context.Context) ([]int64, error) {
	members, err := r.client.SMembers(ctx, allVendorsKey).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *RedisStore) FlushAll(ctx context.Context) error {
	ids, err := r.GetAllVendorIDs(ctx)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, metaKey(id))
	}
	pipe.Del(ctx, allVendorsKey, availableGeo)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
