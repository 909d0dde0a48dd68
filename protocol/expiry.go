package protocol

import "time"

// FallbackTTL covers message types without their own entry.
const FallbackTTL = 10 * time.Minute

var defaultTTLs = map[string]time.Duration{
	TypeVendorStatus: 90 * time.Second,

	TypeOfferResponse: 5 * time.Minute,
	TypeOfferNotify:   5 * time.Minute,
	TypeOfferClosed:   5 * time.Minute,

	TypeBookingConfirmed: 30 * time.Minute,
	TypeBookingCancelled: 30 * time.Minute,
}

// DefaultTTLFor is how long a message of msgType stays deliverable.
// Booking requests, acks and updates use FallbackTTL.
func DefaultTTLFor(msgType string) time.Duration {
	if ttl, ok := defaultTTLs[msgType]; ok {
		return ttl
	}
	return FallbackTTL
}
