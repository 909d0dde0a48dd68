package store

import (
	"database/sql"
	"fmt"
	"time"
)

type Booking struct {
	ID               int64      `json:"id"`
	UUID             string     `json:"uuid"`
	RequesterID      string     `json:"requester_id"`
	PickupLat        float64    `json:"pickup_lat"`
	PickupLng        float64    `json:"pickup_lng"`
	PickupAddress    string     `json:"pickup_address"`
	DropLat          float64    `json:"drop_lat"`
	DropLng          float64    `json:"drop_lng"`
	DropAddress      string     `json:"drop_address"`
	Material         string     `json:"material"`
	VehicleType      string     `json:"vehicle_type"`
	WeightKg         float64    `json:"weight_kg"`
	Status           string     `json:"status"`
	AssignedVendorID *int64     `json:"assigned_vendor_id,omitempty"`
	CancelReason     string     `json:"cancel_reason,omitempty"`
	QuotedPrice      float64    `json:"quoted_price"`
	FinalPrice       float64    `json:"final_price"`
	LastDispatchAt   *time.Time `json:"last_dispatch_at,omitempty"`
	ConfirmedAt      *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type BookingHistory struct {
	ID        int64     `json:"id"`
	BookingID int64     `json:"booking_id"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// CancelOutcome describes a committed cancellation. Booking holds the
// state as it was before the cancel.
type CancelOutcome struct {
	Booking        *Booking
	CancelledOffer *Offer
	// Released lists the vendors returned to the pool by the cancellation.
	Released []int64
}

const bookingSelectCols = `id, uuid, requester_id, pickup_lat, pickup_lng, pickup_address, drop_lat, drop_lng, drop_address, material, vehicle_type, weight_kg, status, assigned_vendor_id, cancel_reason, quoted_price, final_price, last_dispatch_at, confirmed_at, completed_at, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (*Booking, error) {
	var b Booking
	var vendorID sql.NullInt64
	var lastDispatchAt, confirmedAt, completedAt, createdAt, updatedAt any
	err := row.Scan(&b.ID, &b.UUID, &b.RequesterID,
		&b.PickupLat, &b.PickupLng, &b.PickupAddress,
		&b.DropLat, &b.DropLng, &b.DropAddress,
		&b.Material, &b.VehicleType, &b.WeightKg, &b.Status,
		&vendorID, &b.CancelReason, &b.QuotedPrice, &b.FinalPrice,
		&lastDispatchAt, &confirmedAt, &completedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if vendorID.Valid {
		b.AssignedVendorID = &vendorID.Int64
	}
	b.LastDispatchAt = parseTimePtr(lastDispatchAt)
	b.ConfirmedAt = parseTimePtr(confirmedAt)
	b.CompletedAt = parseTimePtr(completedAt)
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]*Booking, error) {
	var bookings []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (db *DB) CreateBooking(b *Booking) error {
	if b.Status == "" {
		b.Status = "pending"
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	defer tx.Rollback()

	id, err := db.insertID(tx, `INSERT INTO bookings (uuid, requester_id, pickup_lat, pickup_lng, pickup_address, drop_lat, drop_lng, drop_address, material, vehicle_type, weight_kg, status, quoted_price) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.UUID, b.RequesterID, b.PickupLat, b.PickupLng, b.PickupAddress,
		b.DropLat, b.DropLng, b.DropAddress, b.Material, b.VehicleType, b.WeightKg,
		b.Status, b.QuotedPrice)
	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	if _, err := tx.Exec(db.Q(`INSERT INTO booking_history (booking_id, status, detail) VALUES (?, ?, ?)`), id, b.Status, "booking created"); err != nil {
		return fmt.Errorf("create booking history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	b.ID = id
	return nil
}

func (db *DB) GetBooking(id int64) (*Booking, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM bookings WHERE id=?`, bookingSelectCols)), id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

func (db *DB) GetBookingByUUID(uuid string) (*Booking, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM bookings WHERE uuid=?`, bookingSelectCols)), uuid)
	b, err := scanBooking(row)
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

func (db *DB) ListBookings(status string, limit int) ([]*Booking, error) {
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM bookings WHERE status=? ORDER BY id DESC LIMIT ?`, bookingSelectCols)), status, limit)
	} else {
		rows, err = db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM bookings ORDER BY id DESC LIMIT ?`, bookingSelectCols)), limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

// TransitionBooking moves a booking from one status to another and records
// the change in booking_history. It reports false when the booking was not
// in the expected status. Completing a booking also returns its assigned
// vendor from booked to in.
func (db *DB) TransitionBooking(id int64, from, to, detail string, now time.Time) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	query := `UPDATE bookings SET status=?, updated_at=? WHERE id=? AND status=?`
	args := []any{to, db.ts(now), id, from}
	if to == "completed" {
		query = `UPDATE bookings SET status=?, completed_at=?, updated_at=? WHERE id=? AND status=?`
		args = []any{to, db.ts(now), db.ts(now), id, from}
	}
	ok, err := casExec(tx, db.Q(query), args...)
	if err != nil || !ok {
		return false, err
	}
	if to == "completed" {
		if _, err := tx.Exec(db.Q(`UPDATE vendors SET availability='in', updated_at=? WHERE id=(SELECT assigned_vendor_id FROM bookings WHERE id=?) AND availability='booked'`),
			db.ts(now), id); err != nil {
			return false, err
		}
	}
	if err := db.appendHistory(tx, id, to, detail); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// BeginSearch moves a pending booking to searching_vendor and stamps the
// dispatch attempt time.
func (db *DB) BeginSearch(id int64, now time.Time) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	ok, err := casExec(tx, db.Q(`UPDATE bookings SET status='searching_vendor', last_dispatch_at=?, updated_at=? WHERE id=? AND status='pending'`),
		db.ts(now), db.ts(now), id)
	if err != nil || !ok {
		return false, err
	}
	if err := db.appendHistory(tx, id, "searching_vendor", "dispatch started"); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// TouchDispatch records a dispatch attempt on a searching booking so the
// sweeper's stuck-booking scan waits a full grace period before retrying.
func (db *DB) TouchDispatch(id int64, now time.Time) error {
	_, err := db.Exec(db.Q(`UPDATE bookings SET last_dispatch_at=? WHERE id=? AND status='searching_vendor'`), db.ts(now), id)
	return err
}

// CancelBookingTx cancels a booking whose current status is one of from.
// In the same transaction its pending offer (if any) is cancelled and that
// vendor goes from requested to in, and the assigned vendor of a confirmed
// booking goes from booked to in. A nil outcome means the booking was not
// cancellable.
func (db *DB) CancelBookingTx(id int64, from []string, reason string, now time.Time) (*CancelOutcome, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	before, err := scanBooking(tx.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM bookings WHERE id=?`, bookingSelectCols)), id))
	if err != nil {
		return nil, notFound(err)
	}
	allowed := false
	for _, s := range from {
		if before.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, nil
	}

	ok, err := casExec(tx, db.Q(`UPDATE bookings SET status='cancelled', cancel_reason=?, updated_at=? WHERE id=? AND status=?`),
		reason, db.ts(now), id, before.Status)
	if err != nil || !ok {
		return nil, err
	}

	out := &CancelOutcome{Booking: before}
	pending, err := scanOffer(tx.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM offers WHERE booking_id=? AND status='pending'`, offerSelectCols)), id))
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, err
	default:
		ok, err := casExec(tx, db.Q(`UPDATE offers SET status='cancelled', responded_at=? WHERE id=? AND status='pending'`), db.ts(now), pending.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			pending.Status = "cancelled"
			pending.RespondedAt = &now
			out.CancelledOffer = pending
			released, err := db.moveVendor(tx, pending.VendorID, "requested", "in", now)
			if err != nil {
				return nil, err
			}
			if released {
				out.Released = append(out.Released, pending.VendorID)
			}
		}
	}
	if before.Status == "confirmed" && before.AssignedVendorID != nil {
		released, err := db.moveVendor(tx, *before.AssignedVendorID, "booked", "in", now)
		if err != nil {
			return nil, err
		}
		if released {
			out.Released = append(out.Released, *before.AssignedVendorID)
		}
	}

	if err := db.appendHistory(tx, id, "cancelled", reason); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListStuckBookings returns searching bookings that have no pending offer
// and whose last dispatch attempt is at or before olderThan.
func (db *DB) ListStuckBookings(olderThan time.Time) ([]*Booking, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM bookings b
		WHERE b.status='searching_vendor'
		AND (b.last_dispatch_at IS NULL OR b.last_dispatch_at <= ?)
		AND NOT EXISTS (SELECT 1 FROM offers o WHERE o.booking_id=b.id AND o.status='pending')
		ORDER BY b.id`, bookingSelectCols)), db.ts(olderThan))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (db *DB) ListBookingHistory(bookingID int64) ([]*BookingHistory, error) {
	rows, err := db.Query(db.Q(`SELECT id, booking_id, status, detail, created_at FROM booking_history WHERE booking_id=? ORDER BY id`), bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var history []*BookingHistory
	for rows.Next() {
		var h BookingHistory
		var createdAt any
		if err := rows.Scan(&h.ID, &h.BookingID, &h.Status, &h.Detail, &createdAt); err != nil {
			return nil, err
		}
		h.CreatedAt = parseTime(createdAt)
		history = append(history, &h)
	}
	return history, rows.Err()
}

func (db *DB) appendHistory(ex execer, bookingID int64, status, detail string) error {
	_, err := ex.Exec(db.Q(`INSERT INTO booking_history (booking_id, status, detail) VALUES (?, ?, ?)`), bookingID, status, detail)
	return err
}

// casExec runs a conditional UPDATE and reports whether exactly one row
// changed.
func casExec(ex execer, query string, args ...any) (bool, error) {
	result, err := ex.Exec(query, args...)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
