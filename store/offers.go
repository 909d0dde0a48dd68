package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrBookingNotSearching is returned by CreateOffer when the booking left
// searching_vendor before the offer could be written.
var ErrBookingNotSearching = errors.New("booking is not searching for a vendor")

// ErrVendorTaken is returned by CreateOffer when the vendor is no longer
// available to hold an offer.
var ErrVendorTaken = errors.New("vendor is not available")

// Offer is one Offer Ledger entry: a time-bounded proposal of a booking to
// a single vendor. Rows are never deleted.
type Offer struct {
	ID          int64      `json:"id"`
	BookingID   int64      `json:"booking_id"`
	VendorID    int64      `json:"vendor_id"`
	Sequence    int        `json:"sequence"`
	Status      string     `json:"status"`
	DistanceKm  float64    `json:"distance_km"`
	SentAt      time.Time  `json:"sent_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

const offerSelectCols = `id, booking_id, vendor_id, sequence, status, distance_km, sent_at, expires_at, responded_at, created_at`

func scanOffer(row interface{ Scan(...any) error }) (*Offer, error) {
	var o Offer
	var sentAt, expiresAt, respondedAt, createdAt any
	err := row.Scan(&o.ID, &o.BookingID, &o.VendorID, &o.Sequence, &o.Status, &o.DistanceKm,
		&sentAt, &expiresAt, &respondedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	o.SentAt = parseTime(sentAt)
	o.ExpiresAt = parseTime(expiresAt)
	o.RespondedAt = parseTimePtr(respondedAt)
	o.CreatedAt = parseTime(createdAt)
	return &o, nil
}

func scanOffers(rows *sql.Rows) ([]*Offer, error) {
	var offers []*Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// CreateOffer claims the offer's vendor (in -> requested) and inserts a
// pending offer in one transaction. A vendor that is no longer in returns
// ErrVendorTaken. The insert only happens while the booking is
// searching_vendor; the unique indexes reject a second pending offer or a
// reused sequence number with ErrPendingOfferExists. On any error the
// vendor is left as it was.
func (db *DB) CreateOffer(o *Offer) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ok, err := db.moveVendor(tx, o.VendorID, "in", "requested", o.SentAt)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if !ok {
		return ErrVendorTaken
	}

	query := `INSERT INTO offers (booking_id, vendor_id, sequence, status, distance_km, sent_at, expires_at)
		SELECT ?, ?, ?, 'pending', ?, ?, ? WHERE EXISTS (SELECT 1 FROM bookings WHERE id=? AND status='searching_vendor')`
	args := []any{o.BookingID, o.VendorID, o.Sequence, o.DistanceKm, db.ts(o.SentAt), db.ts(o.ExpiresAt), o.BookingID}

	var id int64
	if db.dialect.returning() {
		err := tx.QueryRow(db.Q(query+" RETURNING id"), args...).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrBookingNotSearching
		case isUniqueViolation(err):
			return ErrPendingOfferExists
		case err != nil:
			return fmt.Errorf("create offer: %w", err)
		}
	} else {
		result, err := tx.Exec(db.Q(query), args...)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrPendingOfferExists
			}
			return fmt.Errorf("create offer: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("create offer: %w", err)
		}
		if n == 0 {
			return ErrBookingNotSearching
		}
		if id, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("create offer last id: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	o.ID = id
	o.Status = "pending"
	return nil
}

func (db *DB) GetOffer(id int64) (*Offer, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM offers WHERE id=?`, offerSelectCols)), id)
	o, err := scanOffer(row)
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

func (db *DB) ListOffersByBooking(bookingID int64) ([]*Offer, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM offers WHERE booking_id=? ORDER BY sequence`, offerSelectCols)), bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOffers(rows)
}

func (db *DB) ListOffersByVendor(vendorID int64, limit int) ([]*Offer, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM offers WHERE vendor_id=? ORDER BY id DESC LIMIT ?`, offerSelectCols)), vendorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOffers(rows)
}

// PendingOfferForBooking returns ErrNotFound when the booking has no open offer.
func (db *DB) PendingOfferForBooking(bookingID int64) (*Offer, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM offers WHERE booking_id=? AND status='pending'`, offerSelectCols)), bookingID)
	o, err := scanOffer(row)
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

// MaxOfferSequence returns 0 for a booking that was never offered.
func (db *DB) MaxOfferSequence(bookingID int64) (int, error) {
	var seq int
	err := db.QueryRow(db.Q(`SELECT COALESCE(MAX(sequence), 0) FROM offers WHERE booking_id=?`), bookingID).Scan(&seq)
	return seq, err
}

// OfferedVendorIDs lists every vendor that has ever held an offer for the booking.
func (db *DB) OfferedVendorIDs(bookingID int64) ([]int64, error) {
	rows, err := db.Query(db.Q(`SELECT DISTINCT vendor_id FROM offers WHERE booking_id=? ORDER BY vendor_id`), bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListOverdueOffers returns pending offers whose expiry is at or before now.
func (db *DB) ListOverdueOffers(now time.Time) ([]*Offer, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM offers WHERE status='pending' AND expires_at <= ? ORDER BY expires_at, id`, offerSelectCols)), db.ts(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOffers(rows)
}

// CountPendingOffers counts open offers for a booking.
func (db *DB) CountPendingOffers(bookingID int64) (int, error) {
	var n int
	err := db.QueryRow(db.Q(`SELECT COUNT(*) FROM offers WHERE booking_id=? AND status='pending'`), bookingID).Scan(&n)
	return n, err
}

// ResolveOffer moves a pending, unexpired offer to a terminal status and
// returns its vendor to the pool in the same transaction.
func (db *DB) ResolveOffer(id int64, to string, now time.Time) (bool, error) {
	return db.closeOffer(id, now,
		`UPDATE offers SET status=?, responded_at=? WHERE id=? AND status='pending' AND expires_at > ?`,
		to, db.ts(now), id, db.ts(now))
}

// ExpireOffer moves a pending offer to expired once its expiry has passed
// and returns its vendor to the pool.
func (db *DB) ExpireOffer(id int64, now time.Time) (bool, error) {
	return db.closeOffer(id, now,
		`UPDATE offers SET status='expired', responded_at=? WHERE id=? AND status='pending' AND expires_at <= ?`,
		db.ts(now), id, db.ts(now))
}

func (db *DB) closeOffer(id int64, now time.Time, query string, args ...any) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	ok, err := casExec(tx, db.Q(query), args...)
	if err != nil || !ok {
		return false, err
	}
	if _, err := tx.Exec(db.Q(`UPDATE vendors SET availability='in', updated_at=? WHERE id=(SELECT vendor_id FROM offers WHERE id=?) AND availability='requested'`),
		db.ts(now), id); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// AcceptOffer accepts a pending, unexpired offer, confirms its booking with
// the offer's vendor and moves that vendor from requested to booked. All of
// it commits together or not at all. vendorBooked is false when the vendor
// was not requested at the time; the acceptance still stands.
func (db *DB) AcceptOffer(offerID int64, now time.Time) (ok, vendorBooked bool, err error) {
	tx, err := db.Begin()
	if err != nil {
		return false, false, err
	}
	defer tx.Rollback()

	o, err := scanOffer(tx.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM offers WHERE id=?`, offerSelectCols)), offerID))
	if err != nil {
		return false, false, notFound(err)
	}

	ok, err = casExec(tx, db.Q(`UPDATE offers SET status='accepted', responded_at=? WHERE id=? AND status='pending' AND expires_at > ?`),
		db.ts(now), offerID, db.ts(now))
	if err != nil || !ok {
		return false, false, err
	}
	ok, err = casExec(tx, db.Q(`UPDATE bookings SET status='confirmed', assigned_vendor_id=?, confirmed_at=?, updated_at=? WHERE id=? AND status='searching_vendor'`),
		o.VendorID, db.ts(now), db.ts(now), o.BookingID)
	if err != nil || !ok {
		return false, false, err
	}
	vendorBooked, err = db.moveVendor(tx, o.VendorID, "requested", "booked", now)
	if err != nil {
		return false, false, err
	}
	if err := db.appendHistory(tx, o.BookingID, "confirmed", fmt.Sprintf("offer %d accepted by vendor %d", o.ID, o.VendorID)); err != nil {
		return false, false, err
	}
	if err := tx.Commit(); err != nil {
		return false, false, err
	}
	return true, vendorBooked, nil
}
