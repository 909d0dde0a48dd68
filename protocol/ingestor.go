package protocol

import (
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// FilterFunc returns true if the message should be processed.
type FilterFunc func(hdr *Header) bool

// MessageHandler defines callbacks for all protocol message types.
// Embed NoOpHandler and override only the methods you need.
type MessageHandler interface {
	// Requester/Vendor -> Core
	HandleBookingRequest(env *Envelope, p *BookingRequest)
	HandleBookingCancel(env *Envelope, p *BookingCancel)
	HandleOfferResponse(env *Envelope, p *OfferResponse)
	HandleVendorStatus(env *Envelope, p *VendorStatus)

	// Core -> Vendor
	HandleOfferNotify(env *Envelope, p *OfferNotify)
	HandleOfferClosed(env *Envelope, p *OfferClosed)

	// Core -> Requester
	HandleBookingAck(env *Envelope, p *BookingAck)
	HandleBookingUpdate(env *Envelope, p *BookingUpdate)
	HandleBookingConfirmed(env *Envelope, p *BookingConfirmed)
	HandleBookingCancelled(env *Envelope, p *BookingCancelled)
}

// Ingestor decodes raw bus messages in two steps: the header first, to
// drop stale, foreign or too-new messages cheaply, then the payload.
type Ingestor struct {
	filter FilterFunc
	routes map[string]func(*Envelope) error

	// Now is the clock used for expiry checks.
	Now func() time.Time
}

func NewIngestor(handler MessageHandler, filter FilterFunc) *Ingestor {
	return &Ingestor{
		filter: filter,
		Now:    time.Now,
		routes: map[string]func(*Envelope) error{
			TypeBookingRequest:   route(handler.HandleBookingRequest),
			TypeBookingCancel:    route(handler.HandleBookingCancel),
			TypeOfferResponse:    route(handler.HandleOfferResponse),
			TypeVendorStatus:     route(handler.HandleVendorStatus),
			TypeOfferNotify:      route(handler.HandleOfferNotify),
			TypeOfferClosed:      route(handler.HandleOfferClosed),
			TypeBookingAck:       route(handler.HandleBookingAck),
			TypeBookingUpdate:    route(handler.HandleBookingUpdate),
			TypeBookingConfirmed: route(handler.HandleBookingConfirmed),
			TypeBookingCancelled: route(handler.HandleBookingCancelled),
		},
	}
}

// CoreFilter accepts messages addressed to the core role.
func CoreFilter(hdr *Header) bool {
	return hdr.Dst.Role == RoleCore
}

// HandleRaw is the entry point for raw message bytes from the messaging layer.
// Problems are logged; a bad message never stops the consumer.
func (ing *Ingestor) HandleRaw(data []byte) {
	if err := ing.handle(data); err != nil {
		log.Printf("protocol: %v", err)
	}
}

func (ing *Ingestor) handle(data []byte) error {
	var hdr Header
	if err := json.Unmarshal(data, &hdr); err != nil {
		return fmt.Errorf("header decode: %w", err)
	}
	switch {
	case hdr.Version > Version:
		return fmt.Errorf("drop %s: unsupported version %d", hdr.ID, hdr.Version)
	case hdr.ExpiredAt(ing.Now().UTC()):
		return fmt.Errorf("drop %s: %s expired at %s", hdr.ID, hdr.Type, hdr.ExpiresAt.Format(time.RFC3339))
	case ing.filter != nil && !ing.filter(&hdr):
		return nil
	}

	call, ok := ing.routes[hdr.Type]
	if !ok {
		return fmt.Errorf("unknown message type %q", hdr.Type)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("envelope decode %s: %w", hdr.ID, err)
	}
	return call(&env)
}

func route[T any](fn func(*Envelope, *T)) func(*Envelope) error {
	return func(env *Envelope) error {
		var p T
		if err := env.DecodePayload(&p); err != nil {
			return fmt.Errorf("payload decode %s: %w", env.Type, err)
		}
		fn(env, &p)
		return nil
	}
}
