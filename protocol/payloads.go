package protocol

import "time"

// --- Requester/Vendor -> Core payloads ---

// BookingRequest asks the core to create a booking and start dispatch.
type BookingRequest struct {
	RequestID     string  `json:"request_id"`
	RequesterID   string  `json:"requester_id"`
	PickupLat     float64 `json:"pickup_lat"`
	PickupLng     float64 `json:"pickup_lng"`
	PickupAddress string  `json:"pickup_address,omitempty"`
	DropLat       float64 `json:"drop_lat"`
	DropLng       float64 `json:"drop_lng"`
	DropAddress   string  `json:"drop_address,omitempty"`
	Material      string  `json:"material,omitempty"`
	VehicleType   string  `json:"vehicle_type,omitempty"`
	WeightKg      float64 `json:"weight_kg"`
	QuotedPrice   float64 `json:"quoted_price,omitempty"`
}

// BookingCancel cancels a booking by its public UUID.
type BookingCancel struct {
	BookingUUID string `json:"booking_uuid"`
	Reason      string `json:"reason"`
}

// OfferResponse is a vendor's accept or reject.
type OfferResponse struct {
	OfferID  int64  `json:"offer_id"`
	VendorID int64  `json:"vendor_id"`
	Decision string `json:"decision"`
}

// VendorStatus reports a vendor going on or off duty, optionally with a position fix.
type VendorStatus struct {
	VendorID     int64    `json:"vendor_id"`
	Availability string   `json:"availability,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lng          *float64 `json:"lng,omitempty"`
}

// --- Core -> Vendor payloads ---

// OfferNotify tells a vendor it holds an offer until ExpiresAt.
type OfferNotify struct {
	OfferID       int64     `json:"offer_id"`
	BookingUUID   string    `json:"booking_uuid"`
	Sequence      int       `json:"sequence"`
	PickupLat     float64   `json:"pickup_lat"`
	PickupLng     float64   `json:"pickup_lng"`
	PickupAddress string    `json:"pickup_address,omitempty"`
	DropAddress   string    `json:"drop_address,omitempty"`
	Material      string    `json:"material,omitempty"`
	WeightKg      float64   `json:"weight_kg"`
	DistanceKm    float64   `json:"distance_km"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// OfferClosed withdraws an offer the vendor can no longer answer.
type OfferClosed struct {
	OfferID int64  `json:"offer_id"`
	Status  string `json:"status"`
}

// --- Core -> Requester payloads ---

// BookingAck confirms a booking request was accepted.
type BookingAck struct {
	RequestID   string `json:"request_id"`
	BookingID   int64  `json:"booking_id"`
	BookingUUID string `json:"booking_uuid"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// BookingUpdate provides a status change.
type BookingUpdate struct {
	BookingUUID string `json:"booking_uuid"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
}

// BookingConfirmed names the vendor that accepted.
type BookingConfirmed struct {
	BookingUUID string `json:"booking_uuid"`
	VendorID    int64  `json:"vendor_id"`
	VendorName  string `json:"vendor_name,omitempty"`
	VendorPhone string `json:"vendor_phone,omitempty"`
}

// BookingCancelled confirms cancellation.
type BookingCancelled struct {
	BookingUUID string `json:"booking_uuid"`
	Reason      string `json:"reason"`
}
