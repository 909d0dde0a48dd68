package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type Vendor struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	VehicleType  string    `json:"vehicle_type"`
	CapacityKg   float64   `json:"capacity_kg"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	Availability string    `json:"availability"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// VendorFilter narrows ListVendorCandidates. Zero values disable a clause.
type VendorFilter struct {
	Availability  string
	VehicleType   string
	MinCapacityKg float64
	MinLat        float64
	MaxLat        float64
	MinLng        float64
	MaxLng        float64
	UseBox        bool
}

const vendorSelectCols = `id, name, phone, vehicle_type, capacity_kg, lat, lng, availability, created_at, updated_at`

func scanVendor(row interface{ Scan(...any) error }) (*Vendor, error) {
	var v Vendor
	var createdAt, updatedAt any
	err := row.Scan(&v.ID, &v.Name, &v.Phone, &v.VehicleType, &v.CapacityKg,
		&v.Lat, &v.Lng, &v.Availability, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return &v, nil
}

func scanVendors(rows *sql.Rows) ([]*Vendor, error) {
	var vendors []*Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

func (db *DB) CreateVendor(v *Vendor) error {
	if v.Availability == "" {
		v.Availability = "out"
	}
	id, err := db.insertID(db.DB, `INSERT INTO vendors (name, phone, vehicle_type, capacity_kg, lat, lng, availability) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.Name, v.Phone, v.VehicleType, v.CapacityKg, v.Lat, v.Lng, v.Availability)
	if err != nil {
		return fmt.Errorf("create vendor: %w", err)
	}
	v.ID = id
	return nil
}

func (db *DB) UpdateVendorPosition(id int64, lat, lng float64) error {
	result, err := db.Exec(db.Q(`UPDATE vendors SET lat=?, lng=?, updated_at=strftime('%Y-%m-%d %H:%M:%f','now') WHERE id=?`), lat, lng, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (db *DB) GetVendor(id int64) (*Vendor, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM vendors WHERE id=?`, vendorSelectCols)), id)
	v, err := scanVendor(row)
	if err != nil {
		return nil, notFound(err)
	}
	return v, nil
}

func (db *DB) ListVendors() ([]*Vendor, error) {
	rows, err := db.Query(fmt.Sprintf(`SELECT %s FROM vendors ORDER BY id`, vendorSelectCols))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVendors(rows)
}

func (db *DB) ListVendorsByAvailability(availability string) ([]*Vendor, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM vendors WHERE availability=? ORDER BY id`, vendorSelectCols)), availability)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVendors(rows)
}

// ListVendorCandidates is the SQL prefilter for candidate search. Distance
// ranking happens in the caller.
func (db *DB) ListVendorCandidates(f VendorFilter) ([]*Vendor, error) {
	var where []string
	var args []any
	if f.Availability != "" {
		where = append(where, "availability=?")
		args = append(args, f.Availability)
	}
	if f.VehicleType != "" {
		where = append(where, "vehicle_type=?")
		args = append(args, f.VehicleType)
	}
	if f.MinCapacityKg > 0 {
		where = append(where, "capacity_kg>=?")
		args = append(args, f.MinCapacityKg)
	}
	if f.UseBox {
		where = append(where, "lat BETWEEN ? AND ?", "lng BETWEEN ? AND ?")
		args = append(args, f.MinLat, f.MaxLat, f.MinLng, f.MaxLng)
	}
	query := fmt.Sprintf(`SELECT %s FROM vendors`, vendorSelectCols)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	rows, err := db.Query(db.Q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVendors(rows)
}

// SetVendorAvailability writes the state unconditionally. Writing the
// current value again is not an error.
func (db *DB) SetVendorAvailability(id int64, availability string) error {
	result, err := db.Exec(db.Q(`UPDATE vendors SET availability=?, updated_at=strftime('%Y-%m-%d %H:%M:%f','now') WHERE id=?`), availability, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SetVendorAvailabilityIf moves a vendor from one availability to another
// only when the stored value still equals from.
func (db *DB) SetVendorAvailabilityIf(id int64, from, to string) (bool, error) {
	result, err := db.Exec(db.Q(`UPDATE vendors SET availability=?, updated_at=strftime('%Y-%m-%d %H:%M:%f','now') WHERE id=? AND availability=?`), to, id, from)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n == 1, err
}

// moveVendor is the availability compare-and-set that offer and booking
// transactions run alongside their own updates.
func (db *DB) moveVendor(ex execer, id int64, from, to string, now time.Time) (bool, error) {
	return casExec(ex, db.Q(`UPDATE vendors SET availability=?, updated_at=? WHERE id=? AND availability=?`),
		to, db.ts(now), id, from)
}

const orphanedVendorCond = `((v.availability='requested' AND NOT EXISTS (SELECT 1 FROM offers o WHERE o.vendor_id=v.id AND o.status='pending'))
	OR (v.availability='booked' AND NOT EXISTS (SELECT 1 FROM bookings b WHERE b.assigned_vendor_id=v.id AND b.status IN ('confirmed','in_transit'))))`

// ReleaseOrphanedVendors returns to the pool every vendor that is requested
// with no pending offer, or booked with no confirmed or in-transit booking,
// and whose availability has not changed since olderThan. It returns the
// IDs it moved.
func (db *DB) ReleaseOrphanedVendors(olderThan, now time.Time) ([]int64, error) {
	rows, err := db.Query(db.Q(`SELECT v.id FROM vendors v WHERE v.updated_at <= ? AND `+orphanedVendorCond+` ORDER BY v.id`), db.ts(olderThan))
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var released []int64
	for _, id := range ids {
		ok, err := casExec(db.DB, db.Q(`UPDATE vendors SET availability='in', updated_at=? WHERE id=? AND updated_at <= ? AND EXISTS (SELECT 1 FROM vendors v WHERE v.id=? AND `+orphanedVendorCond+`)`),
			db.ts(now), id, db.ts(olderThan), id)
		if err != nil {
			return released, fmt.Errorf("release vendor %d: %w", id, err)
		}
		if ok {
			released = append(released, id)
		}
	}
	return released, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
