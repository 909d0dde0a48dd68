package directory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

// Manager is the vendor directory. Availability is written SQL first,
// then mirrored to Redis. Redis is optional; a nil store means SQL only.
type Manager struct {
	db    *store.DB
	redis *RedisStore
}

func NewManager(db *store.DB, redis *RedisStore) *Manager {
	return &Manager{db: db, redis: redis}
}

// FindCandidates returns available vendors within q.RadiusKm of the query
// point, nearest first with ties broken by vendor ID. Vendors listed in
// q.Exclude are skipped. A non-positive radius disables the distance limit.
func (m *Manager) FindCandidates(ctx context.Context, q Query) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	filter := store.VendorFilter{
		Availability:  In,
		VehicleType:   q.VehicleType,
		MinCapacityKg: q.MinCapacityKg,
	}
	if q.RadiusKm > 0 {
		filter.MinLat, filter.MaxLat, filter.MinLng, filter.MaxLng, filter.UseBox = boundingBox(q.Lat, q.Lng, q.RadiusKm)
	}
	vendors, err := m.db.ListVendorCandidates(filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	excluded := make(map[int64]bool, len(q.Exclude))
	for _, id := range q.Exclude {
		excluded[id] = true
	}

	var out []Candidate
	for _, v := range vendors {
		if excluded[v.ID] {
			continue
		}
		d := haversine(q.Lat, q.Lng, v.Lat, v.Lng)
		if q.RadiusKm > 0 && d > q.RadiusKm {
			continue
		}
		out = append(out, Candidate{Vendor: v, DistanceKm: d})
	}
	rank(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// SetAvailability writes a vendor's availability. Setting the current
// value again is a no-op success.
func (m *Manager) SetAvailability(ctx context.Context, vendorID int64, state string) error {
	if !ValidAvailability(state) {
		return fmt.Errorf("%w: %q", ErrInvalidAvailability, state)
	}
	if err := m.db.SetVendorAvailability(vendorID, state); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrVendorNotFound, vendorID)
		}
		return err
	}
	m.mirrorAvailability(ctx, vendorID, state)
	return nil
}

// Transition moves a vendor from one availability to another only if the
// stored state still equals from. It reports whether the change applied.
func (m *Manager) Transition(ctx context.Context, vendorID int64, from, to string) (bool, error) {
	if !ValidAvailability(from) || !ValidAvailability(to) {
		return false, ErrInvalidAvailability
	}
	ok, err := m.db.SetVendorAvailabilityIf(vendorID, from, to)
	if err != nil {
		return false, err
	}
	if ok {
		m.mirrorAvailability(ctx, vendorID, to)
	}
	return ok, nil
}

// SetDuty moves a vendor between in and out on the vendor's own request.
// A vendor holding an offer or a trip is refused with ErrVendorBusy.
func (m *Manager) SetDuty(ctx context.Context, vendorID int64, state string) error {
	if state != In && state != Out {
		return fmt.Errorf("%w: %q", ErrInvalidAvailability, state)
	}
	v, err := m.db.GetVendor(vendorID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrVendorNotFound, vendorID)
	}
	if err != nil {
		return err
	}
	if v.Availability == state {
		return nil
	}
	if v.Availability != In && v.Availability != Out {
		return fmt.Errorf("%w: vendor %d is %s", ErrVendorBusy, vendorID, v.Availability)
	}
	ok, err := m.Transition(ctx, vendorID, v.Availability, state)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: vendor %d changed concurrently", ErrVendorBusy, vendorID)
	}
	return nil
}

// Sync copies a vendor's stored availability into the Redis mirror. The
// dispatcher calls it after an offer or booking transaction moved the
// vendor in SQL.
func (m *Manager) Sync(ctx context.Context, vendorID int64) error {
	if m.redis == nil {
		return nil
	}
	v, err := m.db.GetVendor(vendorID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrVendorNotFound, vendorID)
	}
	if err != nil {
		return err
	}
	return m.redis.SetAvailability(ctx, vendorID, v.Availability)
}

// RegisterVendor creates a vendor and mirrors it.
func (m *Manager) RegisterVendor(ctx context.Context, v *store.Vendor) error {
	if v.Availability == "" {
		v.Availability = Out
	}
	if !ValidAvailability(v.Availability) {
		return fmt.Errorf("%w: %q", ErrInvalidAvailability, v.Availability)
	}
	if err := m.db.CreateVendor(v); err != nil {
		return err
	}
	m.refreshVendor(ctx, v.ID)
	return nil
}

// UpdatePosition records a vendor's latest location.
func (m *Manager) UpdatePosition(ctx context.Context, vendorID int64, lat, lng float64) error {
	if err := m.db.UpdateVendorPosition(vendorID, lat, lng); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrVendorNotFound, vendorID)
		}
		return err
	}
	m.refreshVendor(ctx, vendorID)
	return nil
}

// Vendor reads a vendor from Redis, falling back to SQL.
func (m *Manager) Vendor(ctx context.Context, vendorID int64) (*store.Vendor, error) {
	if m.redis != nil {
		meta, err := m.redis.GetVendor(ctx, vendorID)
		if err == nil && meta != nil {
			return meta.vendor(), nil
		}
	}
	v, err := m.db.GetVendor(vendorID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrVendorNotFound, vendorID)
	}
	return v, err
}

// Nearby lists available vendors around a point for the live map. It uses
// the Redis GEO index when present and falls back to the SQL search.
func (m *Manager) Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]Candidate, error) {
	if m.redis != nil {
		locs, err := m.redis.NearbyAvailable(ctx, lat, lng, radiusKm)
		if err == nil {
			out := make([]Candidate, 0, len(locs))
			for _, loc := range locs {
				id, err := strconv.ParseInt(loc.Name, 10, 64)
				if err != nil {
					continue
				}
				meta, err := m.redis.GetVendor(ctx, id)
				if err != nil || meta == nil {
					continue
				}
				out = append(out, Candidate{Vendor: meta.vendor(), DistanceKm: loc.Dist})
			}
			rank(out)
			return out, nil
		}
		log.Printf("directory: redis nearby failed, falling back to sql: %v", err)
	}
	return m.FindCandidates(ctx, Query{Lat: lat, Lng: lng, RadiusKm: radiusKm})
}

// SyncRedisFromSQL rebuilds the Redis mirror from SQL. Called on startup.
func (m *Manager) SyncRedisFromSQL(ctx context.Context) error {
	if m.redis == nil {
		return nil
	}
	if err := m.redis.FlushAll(ctx); err != nil {
		return err
	}
	vendors, err := m.db.ListVendors()
	if err != nil {
		return err
	}
	for _, v := range vendors {
		if err := m.redis.PutVendor(ctx, metaFromVendor(v)); err != nil {
			log.Printf("directory: sync vendor %d: %v", v.ID, err)
		}
	}
	log.Printf("directory: synced %d vendors to redis", len(vendors))
	return nil
}

func (m *Manager) mirrorAvailability(ctx context.Context, vendorID int64, state string) {
	if m.redis == nil {
		return
	}
	if err := m.redis.SetAvailability(ctx, vendorID, state); err != nil {
		log.Printf("directory: mirror availability for vendor %d: %v", vendorID, err)
	}
}

func (m *Manager) refreshVendor(ctx context.Context, vendorID int64) {
	if m.redis == nil {
		return
	}
	v, err := m.db.GetVendor(vendorID)
	if err != nil {
		return
	}
	if err := m.redis.PutVendor(ctx, metaFromVendor(v)); err != nil {
		log.Printf("directory: refresh vendor %d: %v", vendorID, err)
	}
}
