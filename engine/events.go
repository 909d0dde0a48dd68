package engine

import "time"

const (
	EventBookingCreated EventType = iota + 1
	EventDispatchStarted
	EventOfferCreated
	EventOfferResolved
	EventBookingConfirmed
	EventBookingCancelled
	EventBookingStatusChanged
	EventDispatchStalled
	EventInvariantViolation
	EventSweepCompleted
	EventVendorUpdated
	EventDirectoryConnected
	EventDirectoryDisconnected
	EventMessagingConnected
	EventMessagingDisconnected
)

// --- Event payloads ---

type BookingCreatedEvent struct {
	BookingID   int64  `json:"booking_id"`
	BookingUUID string `json:"booking_uuid"`
	RequesterID string `json:"requester_id"`
}

type DispatchStartedEvent struct {
	BookingID  int64 `json:"booking_id"`
	Candidates int   `json:"candidates"`
}

type OfferCreatedEvent struct {
	OfferID   int64     `json:"offer_id"`
	BookingID int64     `json:"booking_id"`
	VendorID  int64     `json:"vendor_id"`
	Sequence  int       `json:"sequence"`
	ExpiresAt time.Time `json:"expires_at"`
}

type OfferResolvedEvent struct {
	OfferID   int64  `json:"offer_id"`
	BookingID int64  `json:"booking_id"`
	VendorID  int64  `json:"vendor_id"`
	Status    string `json:"status"`
}

type BookingConfirmedEvent struct {
	BookingID int64 `json:"booking_id"`
	VendorID  int64 `json:"vendor_id"`
}

type BookingCancelledEvent struct {
	BookingID int64  `json:"booking_id"`
	Reason    string `json:"reason"`
}

type BookingStatusChangedEvent struct {
	BookingID int64  `json:"booking_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

type DispatchStalledEvent struct {
	BookingID int64  `json:"booking_id"`
	Detail    string `json:"detail"`
}

type InvariantViolationEvent struct {
	BookingID int64  `json:"booking_id"`
	Detail    string `json:"detail"`
}

type SweepCompletedEvent struct {
	Expired   int `json:"expired"`
	Advanced  int `json:"advanced"`
	Retried   int `json:"retried"`
	Reclaimed int `json:"reclaimed"`
	Failed    int `json:"failed"`
}

type VendorUpdatedEvent struct {
	VendorID     int64  `json:"vendor_id"`
	Availability string `json:"availability"`
	Action       string `json:"action"` // "registered", "availability", "position"
	Actor        string `json:"actor"`
}

type ConnectionEvent struct {
	Detail string `json:"detail"`
}

// EventName is the wire name used for SSE.
func EventName(t EventType) string {
	switch t {
	case EventBookingCreated:
		return "booking-created"
	case EventDispatchStarted:
		return "dispatch-started"
	case EventOfferCreated:
		return "offer-created"
	case EventOfferResolved:
		return "offer-resolved"
	case EventBookingConfirmed:
		return "booking-confirmed"
	case EventBookingCancelled:
		return "booking-cancelled"
	case EventBookingStatusChanged:
		return "booking-status"
	case EventDispatchStalled:
		return "dispatch-stalled"
	case EventInvariantViolation:
		return "invariant-violation"
	case EventSweepCompleted:
		return "sweep"
	case EventVendorUpdated:
		return "vendor-updated"
	case EventDirectoryConnected, EventDirectoryDisconnected,
		EventMessagingConnected, EventMessagingDisconnected:
		return "connection"
	}
	return "event"
}
