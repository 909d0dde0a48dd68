package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Devloperheera/test.digittrasway-sub003/config"
	"github.com/Devloperheera/test.digittrasway-sub003/directory"
	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

// Dispatcher drives a booking from pending to confirmed or cancelled by
// offering it to one vendor at a time. Every status change goes through a
// compare-and-set in the store, so responses, sweeps and operator actions
// may race freely.
type Dispatcher struct {
	db       *store.DB
	dir      Directory
	emitter  Emitter
	notifier Notifier
	cfg      config.DispatchConfig

	// advanceMu serializes advance so a sweeper retry and an operator
	// re-dispatch cannot both pick the next sequence number.
	advanceMu sync.Mutex

	// Now is the dispatcher's clock. Tests replace it.
	Now func() time.Time
}

func NewDispatcher(db *store.DB, dir Directory, emitter Emitter, notifier Notifier, cfg config.DispatchConfig) *Dispatcher {
	return &Dispatcher{
		db:       db,
		dir:      dir,
		emitter:  emitter,
		notifier: notifier,
		cfg:      cfg,
		Now:      time.Now,
	}
}

// CreateBooking stores a new pending booking and starts dispatch. The
// booking is returned even when dispatch reports an error.
func (d *Dispatcher) CreateBooking(ctx context.Context, nb NewBooking) (*store.Booking, error) {
	if err := validateNewBooking(nb); err != nil {
		return nil, err
	}
	b := &store.Booking{
		UUID:          uuid.New().String(),
		RequesterID:   nb.RequesterID,
		PickupLat:     nb.PickupLat,
		PickupLng:     nb.PickupLng,
		PickupAddress: nb.PickupAddress,
		DropLat:       nb.DropLat,
		DropLng:       nb.DropLng,
		DropAddress:   nb.DropAddress,
		Material:      nb.Material,
		VehicleType:   nb.VehicleType,
		WeightKg:      nb.WeightKg,
		QuotedPrice:   nb.QuotedPrice,
		Status:        StatusPending,
	}
	if err := d.db.CreateBooking(b); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	d.emitter.EmitBookingCreated(b.ID, b.UUID, b.RequesterID)

	dispatchErr := d.StartDispatch(ctx, b.ID)
	if got, err := d.db.GetBooking(b.ID); err == nil {
		b = got
	}
	return b, dispatchErr
}

// StartDispatch looks up candidates for a pending booking and offers it to
// the nearest one. With no candidates the booking is cancelled. When the
// directory cannot be reached the booking is left searching with no offer
// for the sweeper to retry.
func (d *Dispatcher) StartDispatch(ctx context.Context, bookingID int64) error {
	b, err := d.getBooking(bookingID)
	if err != nil {
		return err
	}
	if b.Status != StatusPending {
		return fmt.Errorf("%w: booking %d is %s", ErrInvalidState, b.ID, b.Status)
	}
	now := d.Now()

	cands, err := d.dir.FindCandidates(ctx, d.query(b, nil))
	if err != nil {
		ok, serr := d.db.BeginSearch(b.ID, now)
		if serr != nil {
			return serr
		}
		if !ok {
			return fmt.Errorf("%w: booking %d left pending", ErrInvalidState, b.ID)
		}
		d.stalled(b.ID, err)
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	if len(cands) == 0 {
		return d.cancelExhausted(b.ID, StatusPending, ReasonNoVendorsInRange, now)
	}

	ok, err := d.db.BeginSearch(b.ID, now)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: booking %d left pending", ErrInvalidState, b.ID)
	}
	log.Printf("dispatch: booking %d searching, %d candidates", b.ID, len(cands))
	d.emitter.EmitDispatchStarted(b.ID, len(cands))

	_, err = d.offerNext(ctx, b, cands, 1, now)
	if errors.Is(err, ErrNoCandidates) {
		return d.cancelExhausted(b.ID, StatusSearching, ReasonNoVendorAvailable, now)
	}
	return err
}

// offerTo creates the next offer for a booking. The store claims the
// vendor and writes the offer row in one transaction.
func (d *Dispatcher) offerTo(ctx context.Context, b *store.Booking, c directory.Candidate, seq int, now time.Time) (*store.Offer, error) {
	existing, err := d.db.PendingOfferForBooking(b.ID)
	switch {
	case err == nil:
		d.conflict(b.ID, fmt.Sprintf("booking %d already has pending offer %d (vendor %d), refusing offer to vendor %d",
			b.ID, existing.ID, existing.VendorID, c.Vendor.ID))
		return nil, ErrConflictingOffer
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	o := &store.Offer{
		BookingID:  b.ID,
		VendorID:   c.Vendor.ID,
		Sequence:   seq,
		DistanceKm: c.DistanceKm,
		SentAt:     now,
		ExpiresAt:  now.Add(d.cfg.OfferTTL),
	}
	if err := d.db.CreateOffer(o); err != nil {
		switch {
		case errors.Is(err, store.ErrVendorTaken):
			return nil, errVendorTaken
		case errors.Is(err, store.ErrPendingOfferExists):
			// another dispatcher wrote this booking's next offer first
			log.Printf("dispatch: booking %d: offer seq %d to vendor %d lost to a concurrent offer", b.ID, seq, c.Vendor.ID)
			return nil, fmt.Errorf("%w: booking %d was offered concurrently", ErrInvalidState, b.ID)
		case errors.Is(err, store.ErrBookingNotSearching):
			return nil, fmt.Errorf("%w: booking %d stopped searching", ErrInvalidState, b.ID)
		}
		return nil, err
	}
	d.syncVendor(ctx, o.VendorID)

	log.Printf("dispatch: offer %d booking %d -> vendor %d seq %d (%.1f km), expires %s",
		o.ID, b.ID, o.VendorID, o.Sequence, o.DistanceKm, o.ExpiresAt.Format(time.RFC3339))
	d.emitter.EmitOfferCreated(o.ID, b.ID, o.VendorID, o.Sequence, o.ExpiresAt)

	if d.notifier != nil {
		if err := d.notifier.NotifyVendor(o.VendorID, o.ID); err != nil {
			log.Printf("dispatch: notify vendor %d for offer %d: %v", o.VendorID, o.ID, err)
		}
	}
	return o, nil
}

// offerNext offers to the first candidate that can still be claimed.
func (d *Dispatcher) offerNext(ctx context.Context, b *store.Booking, cands []directory.Candidate, seq int, now time.Time) (*store.Offer, error) {
	for _, c := range cands {
		o, err := d.offerTo(ctx, b, c, seq, now)
		if errors.Is(err, errVendorTaken) {
			log.Printf("dispatch: booking %d: vendor %d taken, trying next", b.ID, c.Vendor.ID)
			continue
		}
		return o, err
	}
	return nil, ErrNoCandidates
}

// Respond records a vendor's decision on a pending offer. A response at or
// after the expiry returns ErrExpired; a response to an offer that is
// already resolved returns ErrInvalidState and changes nothing. Once a
// rejection is recorded, failures to reach the next vendor are reported
// through the emitter and not returned.
func (d *Dispatcher) Respond(ctx context.Context, offerID int64, decision Decision) error {
	if _, ok := ParseDecision(string(decision)); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDecision, decision)
	}
	o, err := d.db.GetOffer(offerID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrOfferNotFound, offerID)
	}
	if err != nil {
		return err
	}
	now := d.Now()
	if err := checkRespondable(o, now); err != nil {
		return err
	}

	switch decision {
	case Accept:
		ok, booked, err := d.db.AcceptOffer(o.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return d.lostRace(o.ID, now)
		}
		if !booked {
			d.violation(o.BookingID, fmt.Sprintf("vendor %d was not requested when offer %d was accepted", o.VendorID, o.ID))
		}
		d.syncVendor(ctx, o.VendorID)
		log.Printf("dispatch: offer %d accepted, booking %d confirmed with vendor %d", o.ID, o.BookingID, o.VendorID)
		d.emitter.EmitOfferResolved(o.ID, o.BookingID, o.VendorID, OfferAccepted)
		d.emitter.EmitBookingConfirmed(o.BookingID, o.VendorID)
		return nil

	default:
		ok, err := d.db.ResolveOffer(o.ID, OfferRejected, now)
		if err != nil {
			return err
		}
		if !ok {
			return d.lostRace(o.ID, now)
		}
		log.Printf("dispatch: offer %d rejected by vendor %d", o.ID, o.VendorID)
		d.emitter.EmitOfferResolved(o.ID, o.BookingID, o.VendorID, OfferRejected)
		d.syncVendor(ctx, o.VendorID)
		if err := d.advance(ctx, o.BookingID, now); err != nil && !errors.Is(err, ErrDirectoryUnavailable) {
			log.Printf("dispatch: advance booking %d after reject: %v", o.BookingID, err)
		}
		return nil
	}
}

func checkRespondable(o *store.Offer, now time.Time) error {
	switch {
	case o.Status == OfferExpired:
		return fmt.Errorf("%w: offer %d", ErrExpired, o.ID)
	case o.Status != OfferPending:
		return fmt.Errorf("%w: offer %d is %s", ErrInvalidState, o.ID, o.Status)
	case !now.Before(o.ExpiresAt):
		return fmt.Errorf("%w: offer %d at %s", ErrExpired, o.ID, o.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// lostRace explains why a response CAS did not apply.
func (d *Dispatcher) lostRace(offerID int64, now time.Time) error {
	o, err := d.db.GetOffer(offerID)
	if err != nil {
		return err
	}
	if err := checkRespondable(o, now); err != nil {
		return err
	}
	return fmt.Errorf("%w: offer %d changed concurrently", ErrInvalidState, offerID)
}

// advance offers a searching booking to the nearest vendor it has not been
// offered to yet, or cancels it when none remain. A booking that already
// has an open offer is left alone. A directory failure leaves the booking
// searching with no pending offer.
func (d *Dispatcher) advance(ctx context.Context, bookingID int64, now time.Time) error {
	d.advanceMu.Lock()
	defer d.advanceMu.Unlock()

	b, err := d.getBooking(bookingID)
	if err != nil {
		return err
	}
	if b.Status != StatusSearching {
		return nil
	}
	if o, err := d.db.PendingOfferForBooking(b.ID); err == nil {
		log.Printf("dispatch: booking %d already advanced to offer %d", b.ID, o.ID)
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := d.db.TouchDispatch(b.ID, now); err != nil {
		return err
	}

	offered, err := d.db.OfferedVendorIDs(b.ID)
	if err != nil {
		return err
	}
	cands, err := d.dir.FindCandidates(ctx, d.query(b, offered))
	if err != nil {
		d.stalled(b.ID, err)
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	last, err := d.db.MaxOfferSequence(b.ID)
	if err != nil {
		return err
	}

	_, err = d.offerNext(ctx, b, cands, last+1, now)
	if errors.Is(err, ErrNoCandidates) {
		return d.cancelExhausted(b.ID, StatusSearching, ReasonNoVendorAvailable, now)
	}
	return err
}

// CancelBooking is operator cancellation. Any pending offer is cancelled
// with the booking and its vendor goes back to the pool, as does the
// vendor of a confirmed booking.
func (d *Dispatcher) CancelBooking(ctx context.Context, bookingID int64, reason string) error {
	if reason == "" {
		reason = ReasonOperator
	}
	out, err := d.db.CancelBookingTx(bookingID, []string{StatusPending, StatusSearching, StatusConfirmed}, reason, d.Now())
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrBookingNotFound, bookingID)
	}
	if err != nil {
		return err
	}
	if out == nil {
		return fmt.Errorf("%w: booking %d cannot be cancelled", ErrInvalidState, bookingID)
	}

	if o := out.CancelledOffer; o != nil {
		d.emitter.EmitOfferResolved(o.ID, o.BookingID, o.VendorID, OfferCancelled)
	}
	for _, id := range out.Released {
		d.syncVendor(ctx, id)
	}
	log.Printf("dispatch: booking %d cancelled from %s: %s", bookingID, out.Booking.Status, reason)
	d.emitter.EmitBookingCancelled(bookingID, reason)
	return nil
}

// Redispatch is the operator's force re-dispatch. A pending booking gets a
// fresh StartDispatch; a searching booking with no open offer resumes from
// its offer history.
func (d *Dispatcher) Redispatch(ctx context.Context, bookingID int64) error {
	b, err := d.getBooking(bookingID)
	if err != nil {
		return err
	}
	switch b.Status {
	case StatusPending:
		return d.StartDispatch(ctx, b.ID)
	case StatusSearching:
		if _, err := d.db.PendingOfferForBooking(b.ID); err == nil {
			return fmt.Errorf("%w: booking %d has an open offer", ErrInvalidState, b.ID)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		log.Printf("dispatch: force re-dispatch of booking %d", b.ID)
		return d.advance(ctx, b.ID, d.Now())
	}
	return fmt.Errorf("%w: booking %d is %s", ErrInvalidState, b.ID, b.Status)
}

// StartTrip marks a confirmed booking as in transit.
func (d *Dispatcher) StartTrip(ctx context.Context, bookingID int64) error {
	return d.transition(bookingID, StatusConfirmed, StatusInTransit, "trip started", d.Now())
}

// CompleteTrip finishes a trip and returns the assigned vendor to the pool.
func (d *Dispatcher) CompleteTrip(ctx context.Context, bookingID int64) error {
	if err := d.transition(bookingID, StatusInTransit, StatusCompleted, "trip completed", d.Now()); err != nil {
		return err
	}
	b, err := d.getBooking(bookingID)
	if err != nil {
		return err
	}
	if b.AssignedVendorID != nil {
		d.syncVendor(ctx, *b.AssignedVendorID)
	}
	return nil
}

func (d *Dispatcher) transition(bookingID int64, from, to, detail string, now time.Time) error {
	ok, err := d.db.TransitionBooking(bookingID, from, to, detail, now)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := d.getBooking(bookingID); err != nil {
			return err
		}
		return fmt.Errorf("%w: booking %d is not %s", ErrInvalidState, bookingID, from)
	}
	log.Printf("dispatch: booking %d %s -> %s", bookingID, from, to)
	d.emitter.EmitBookingStatusChanged(bookingID, from, to)
	return nil
}

func (d *Dispatcher) cancelExhausted(bookingID int64, from, reason string, now time.Time) error {
	out, err := d.db.CancelBookingTx(bookingID, []string{from}, reason, now)
	if err != nil {
		return err
	}
	if out == nil {
		// someone else finished the booking first
		return nil
	}
	log.Printf("dispatch: booking %d cancelled: %s", bookingID, reason)
	d.emitter.EmitBookingCancelled(bookingID, reason)
	return nil
}

func (d *Dispatcher) query(b *store.Booking, exclude []int64) directory.Query {
	return directory.Query{
		Lat:           b.PickupLat,
		Lng:           b.PickupLng,
		RadiusKm:      d.cfg.SearchRadiusKm,
		VehicleType:   b.VehicleType,
		MinCapacityKg: b.WeightKg,
		Exclude:       exclude,
		Limit:         d.cfg.MaxCandidates,
	}
}

func (d *Dispatcher) getBooking(id int64) (*store.Booking, error) {
	b, err := d.db.GetBooking(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrBookingNotFound, id)
	}
	return b, err
}

// syncVendor pushes a vendor's stored availability to the directory
// mirror after a store transaction changed it.
func (d *Dispatcher) syncVendor(ctx context.Context, vendorID int64) {
	if err := d.dir.Sync(ctx, vendorID); err != nil {
		log.Printf("dispatch: sync vendor %d: %v", vendorID, err)
	}
}

func (d *Dispatcher) stalled(bookingID int64, err error) {
	log.Printf("dispatch: booking %d stalled, directory unavailable: %v", bookingID, err)
	d.emitter.EmitDispatchStalled(bookingID, err.Error())
}

func (d *Dispatcher) conflict(bookingID int64, detail string) {
	log.Printf("dispatch: ERROR conflicting offer: %s", detail)
	d.emitter.EmitInvariantViolation(bookingID, detail)
}

func (d *Dispatcher) violation(bookingID int64, detail string) {
	log.Printf("dispatch: ERROR invariant violation: %s", detail)
	d.emitter.EmitInvariantViolation(bookingID, detail)
}

func validateNewBooking(nb NewBooking) error {
	switch {
	case nb.PickupLat < -90 || nb.PickupLat > 90 || nb.DropLat < -90 || nb.DropLat > 90:
		return fmt.Errorf("%w: latitude out of range", ErrInvalidBooking)
	case nb.PickupLng < -180 || nb.PickupLng > 180 || nb.DropLng < -180 || nb.DropLng > 180:
		return fmt.Errorf("%w: longitude out of range", ErrInvalidBooking)
	case nb.WeightKg < 0:
		return fmt.Errorf("%w: negative weight", ErrInvalidBooking)
	case nb.QuotedPrice < 0:
		return fmt.Errorf("%w: negative price", ErrInvalidBooking)
	}
	return nil
}
