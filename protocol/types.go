package protocol

// Message type constants.
const (
	// Requester/vendor -> Core (published on the bookings topic)
	TypeBookingRequest = "booking.request"
	TypeBookingCancel  = "booking.cancel"
	TypeOfferResponse  = "offer.response"
	TypeVendorStatus   = "vendor.status"

	// Core -> Vendor (published on <vendor_topic_prefix>.<vendor id>)
	TypeOfferNotify = "offer.notify"
	TypeOfferClosed = "offer.closed"

	// Core -> Requester (published on the requester topic)
	TypeBookingAck       = "booking.ack"
	TypeBookingUpdate    = "booking.update"
	TypeBookingConfirmed = "booking.confirmed"
	TypeBookingCancelled = "booking.cancelled"
)

// Roles for Address.Role.
const (
	RoleCore      = "core"
	RoleVendor    = "vendor"
	RoleRequester = "requester"
)

// Protocol version.
const Version = 1
