package directory

import (
	"errors"

	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

// Vendor availability states.
const (
	In        = "in"
	Out       = "out"
	Requested = "requested"
	Booked    = "booked"
)

var (
	ErrVendorNotFound      = errors.New("vendor not found")
	ErrInvalidAvailability = errors.New("invalid availability state")

	// ErrVendorBusy means the vendor's availability is owned by an open
	// offer or trip.
	ErrVendorBusy = errors.New("vendor is busy")

	// ErrUnavailable wraps any failure to read the vendor records.
	ErrUnavailable = errors.New("vendor directory unavailable")
)

func ValidAvailability(s string) bool {
	switch s {
	case In, Out, Requested, Booked:
		return true
	}
	return false
}

// Query describes a candidate search around a pickup point.
type Query struct {
	Lat           float64
	Lng           float64
	RadiusKm      float64
	VehicleType   string
	MinCapacityKg float64
	Exclude       []int64
	Limit         int
}

// Candidate is a vendor with its distance from the query point.
type Candidate struct {
	Vendor     *store.Vendor `json:"vendor"`
	DistanceKm float64       `json:"distance_km"`
}

// VendorMeta is the Redis mirror of a vendor record.
type VendorMeta struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	VehicleType  string  `json:"vehicle_type"`
	CapacityKg   float64 `json:"capacity_kg"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Availability string  `json:"availability"`
}

func metaFromVendor(v *store.Vendor) *VendorMeta {
	return &VendorMeta{
		ID:           v.ID,
		Name:         v.Name,
		VehicleType:  v.VehicleType,
		CapacityKg:   v.CapacityKg,
		Lat:          v.Lat,
		Lng:          v.Lng,
		Availability: v.Availability,
	}
}

func (m *VendorMeta) vendor() *store.Vendor {
	return &store.Vendor{
		ID:           m.ID,
		Name:         m.Name,
		VehicleType:  m.VehicleType,
		CapacityKg:   m.CapacityKg,
		Lat:          m.Lat,
		Lng:          m.Lng,
		Availability: m.Availability,
	}
}
