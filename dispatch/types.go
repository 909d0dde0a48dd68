package dispatch

import (
	"context"

	"github.com/Devloperheera/test.digittrasway-sub003/directory"
)

// Booking statuses.
const (
	StatusPending   = "pending"
	StatusSearching = "searching_vendor"
	StatusConfirmed = "confirmed"
	StatusInTransit = "in_transit"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Offer statuses.
const (
	OfferPending   = "pending"
	OfferAccepted  = "accepted"
	OfferRejected  = "rejected"
	OfferExpired   = "expired"
	OfferCancelled = "cancelled"
)

// Cancellation reasons recorded on the booking.
const (
	ReasonNoVendorsInRange  = "no vendors in range"
	ReasonNoVendorAvailable = "no vendor available"
	ReasonOperator          = "cancelled by operator"
)

// Decision is a vendor's answer to an offer.
type Decision string

const (
	Accept Decision = "accept"
	Reject Decision = "reject"
)

func ParseDecision(s string) (Decision, bool) {
	switch Decision(s) {
	case Accept, Reject:
		return Decision(s), true
	}
	return "", false
}

// NewBooking is the input for CreateBooking.
type NewBooking struct {
	RequesterID   string  `json:"requester_id"`
	PickupLat     float64 `json:"pickup_lat"`
	PickupLng     float64 `json:"pickup_lng"`
	PickupAddress string  `json:"pickup_address"`
	DropLat       float64 `json:"drop_lat"`
	DropLng       float64 `json:"drop_lng"`
	DropAddress   string  `json:"drop_address"`
	Material      string  `json:"material"`
	VehicleType   string  `json:"vehicle_type"`
	WeightKg      float64 `json:"weight_kg"`
	QuotedPrice   float64 `json:"quoted_price"`
}

// Directory is the part of the vendor directory the dispatcher needs.
// Availability changes made by offer and booking transactions happen in
// the store; Sync copies the result into the directory's mirror.
type Directory interface {
	FindCandidates(ctx context.Context, q directory.Query) ([]directory.Candidate, error)
	Sync(ctx context.Context, vendorID int64) error
}
