package dispatch

import "errors"

var (
	// ErrInvalidState: the booking or offer is not in a state that permits
	// the operation. Callers treat it as a no-op acknowledgement.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrConflictingOffer: a second pending offer was about to be created
	// for one booking. Always a bug; nothing is mutated.
	ErrConflictingOffer = errors.New("conflicting pending offer")

	ErrNoCandidates         = errors.New("no candidate vendors")
	ErrDirectoryUnavailable = errors.New("vendor directory unavailable")

	// ErrExpired: the response arrived at or after the offer's expiry.
	ErrExpired = errors.New("offer expired")

	ErrBookingNotFound = errors.New("booking not found")
	ErrOfferNotFound   = errors.New("offer not found")
	ErrInvalidBooking  = errors.New("invalid booking request")
	ErrUnknownDecision = errors.New("unknown decision")
)

// errVendorTaken means another booking claimed the vendor first.
var errVendorTaken = errors.New("vendor no longer available")
