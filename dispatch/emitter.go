package dispatch

import "time"

// Emitter is the interface adapters must satisfy to bridge dispatch events to the engine.
type Emitter interface {
	EmitBookingCreated(bookingID int64, bookingUUID, requesterID string)
	EmitDispatchStarted(bookingID int64, candidates int)
	EmitOfferCreated(offerID, bookingID, vendorID int64, sequence int, expiresAt time.Time)
	EmitOfferResolved(offerID, bookingID, vendorID int64, status string)
	EmitBookingConfirmed(bookingID, vendorID int64)
	EmitBookingCancelled(bookingID int64, reason string)
	EmitBookingStatusChanged(bookingID int64, from, to string)
	EmitDispatchStalled(bookingID int64, detail string)
	EmitInvariantViolation(bookingID int64, detail string)
}

// Notifier delivers an offer to a vendor. Delivery is fire-and-forget:
// errors are logged by the dispatcher and never change dispatch state.
type Notifier interface {
	NotifyVendor(vendorID, offerID int64) error
}
